package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matmarket/procure-service/internal/catalog"
)

func buildTestMatrix(t *testing.T, shops []*catalog.Shop, listings []*catalog.ShopListing, req *CompareRequest) *Matrix {
	t.Helper()
	m, err := newTestMatrixBuilder().Build(context.Background(), testSnapshot(shops, listings), req)
	require.NoError(t, err)
	return m
}

func newTestOptimizer() *Optimizer {
	return NewOptimizer(Defaults(), NewMetricsRecorder())
}

// TestOptimizeSplitBeatsSingle verifies the classic two-item split: each
// shop is cheapest for a different item, so buying across both saves over
// any single shop.
func TestOptimizeSplitBeatsSingle(t *testing.T) {
	shops := []*catalog.Shop{
		testShop("shop-a", 45.0, 16.0),
		testShop("shop-b", 45.1, 16.1),
	}
	listings := []*catalog.ShopListing{
		testListing("shop-a", "item-1", 1000), // a cheapest for item-1
		testListing("shop-a", "item-2", 2500),
		testListing("shop-b", "item-1", 1300),
		testListing("shop-b", "item-2", 2000), // b cheapest for item-2
	}
	m := buildTestMatrix(t, shops, listings, &CompareRequest{Items: []catalog.RequestedItem{
		{VariantID: "item-1", Quantity: 1},
		{VariantID: "item-2", Quantity: 1},
	}})

	result, err := newTestOptimizer().Optimize(context.Background(), m)
	require.NoError(t, err)

	// Cheapest single shop: a = 3500, b = 3300.
	require.NotNil(t, result.CheapestSingleShop)
	assert.Equal(t, "shop-b", result.CheapestSingleShop.ShopID)
	assert.Equal(t, int64(3300), result.CheapestSingleShop.TotalCost)

	// Split: item-1 at a (1000) + item-2 at b (2000) = 3000, saving 300.
	assert.Equal(t, int64(3000), result.MultiShop.TotalCost)
	assert.Equal(t, 2, result.MultiShop.ShopsUsed)
	assert.Equal(t, int64(300), result.Savings)
	assert.Empty(t, result.MissingItems)
}

// TestOptimizeMultiNeverWorseThanSingle verifies the multi-shop plan
// collapses to the single-shop allocation when per-shop delivery fees make
// the split more expensive.
func TestOptimizeMultiNeverWorseThanSingle(t *testing.T) {
	shopA := testShop("shop-a", 45.0, 16.0)
	shopA.DeliveryAvailable = true
	shopA.DeliveryFeeBase = 2000
	shopB := testShop("shop-b", 45.1, 16.1)
	shopB.DeliveryAvailable = true
	shopB.DeliveryFeeBase = 2000

	// Goods barely favour the split but two delivery fees sink it:
	// split = 1000 + 980 + 4000 = 5980, single-a = 1000 + 990 + 2000 = 3990.
	listings := []*catalog.ShopListing{
		testListing("shop-a", "item-1", 1000),
		testListing("shop-a", "item-2", 990),
		testListing("shop-b", "item-1", 1200),
		testListing("shop-b", "item-2", 980),
	}
	m := buildTestMatrix(t, []*catalog.Shop{shopA, shopB}, listings, &CompareRequest{
		Items: []catalog.RequestedItem{
			{VariantID: "item-1", Quantity: 1},
			{VariantID: "item-2", Quantity: 1},
		},
		IncludeDelivery: true,
	})

	result, err := newTestOptimizer().Optimize(context.Background(), m)
	require.NoError(t, err)
	require.NotNil(t, result.CheapestSingleShop)

	assert.Equal(t, 1, result.MultiShop.ShopsUsed)
	assert.Equal(t, result.CheapestSingleShop.TotalCost, result.MultiShop.TotalCost)
	assert.Zero(t, result.Savings)
	assert.LessOrEqual(t, result.MultiShop.TotalCost, result.CheapestSingleShop.TotalCost)
}

// TestOptimizeNoSingleShopCoversAll verifies the optimizer still emits a
// multi-shop plan when no sole supplier exists.
func TestOptimizeNoSingleShopCoversAll(t *testing.T) {
	shops := []*catalog.Shop{
		testShop("shop-a", 45.0, 16.0),
		testShop("shop-b", 45.1, 16.1),
	}
	listings := []*catalog.ShopListing{
		testListing("shop-a", "item-1", 1000),
		testListing("shop-b", "item-2", 2000),
	}
	m := buildTestMatrix(t, shops, listings, &CompareRequest{Items: []catalog.RequestedItem{
		{VariantID: "item-1", Quantity: 1},
		{VariantID: "item-2", Quantity: 1},
	}})

	result, err := newTestOptimizer().Optimize(context.Background(), m)
	require.NoError(t, err)

	assert.Nil(t, result.CheapestSingleShop)
	assert.Equal(t, int64(3000), result.MultiShop.TotalCost)
	assert.Zero(t, result.Savings)
}

// TestOptimizeMissingItems verifies unattainable variants are reported and
// excluded from the plans.
func TestOptimizeMissingItems(t *testing.T) {
	shops := []*catalog.Shop{testShop("shop-a", 45.0, 16.0)}
	listings := []*catalog.ShopListing{testListing("shop-a", "item-1", 1000)}

	m := buildTestMatrix(t, shops, listings, &CompareRequest{Items: []catalog.RequestedItem{
		{VariantID: "item-1", Quantity: 1},
		{VariantID: "item-ghost", Quantity: 2},
	}})

	result, err := newTestOptimizer().Optimize(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, []string{"item-ghost"}, result.MissingItems)
	// No shop covers everything, so no single-shop plan.
	assert.Nil(t, result.CheapestSingleShop)
	require.Len(t, result.MultiShop.Assignments, 1)
	assert.Equal(t, []string{"item-1"}, result.MultiShop.Assignments[0].VariantIDs)
}

// TestOptimizeAllItemsMissing verifies the degenerate case: empty plans,
// every variant reported missing.
func TestOptimizeAllItemsMissing(t *testing.T) {
	m := buildTestMatrix(t, []*catalog.Shop{testShop("shop-a", 45.0, 16.0)}, nil, &CompareRequest{
		Items: []catalog.RequestedItem{
			{VariantID: "item-1", Quantity: 1},
			{VariantID: "item-2", Quantity: 1},
		},
	})

	result, err := newTestOptimizer().Optimize(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, []string{"item-1", "item-2"}, result.MissingItems)
	assert.Nil(t, result.CheapestSingleShop)
	assert.Empty(t, result.MultiShop.Assignments)
	assert.Zero(t, result.MultiShop.TotalCost)
}

// TestOptimizeEmptyRequest verifies zero items produce an empty result.
func TestOptimizeEmptyRequest(t *testing.T) {
	m := buildTestMatrix(t, []*catalog.Shop{testShop("shop-a", 45.0, 16.0)}, nil, &CompareRequest{})

	result, err := newTestOptimizer().Optimize(context.Background(), m)
	require.NoError(t, err)

	assert.Nil(t, result.CheapestSingleShop)
	assert.Empty(t, result.MultiShop.Assignments)
	assert.Empty(t, result.MissingItems)
	assert.Zero(t, result.Savings)
}

// TestOptimizeSingleShopDeliveryFeeOnce verifies a sole supplier charges its
// delivery fee once, not per line item.
func TestOptimizeSingleShopDeliveryFeeOnce(t *testing.T) {
	shop := testShop("shop-a", 45.0, 16.0)
	shop.DeliveryAvailable = true
	shop.DeliveryFeeBase = 1500

	listings := []*catalog.ShopListing{
		testListing("shop-a", "item-1", 1000),
		testListing("shop-a", "item-2", 2000),
	}
	m := buildTestMatrix(t, []*catalog.Shop{shop}, listings, &CompareRequest{
		Items: []catalog.RequestedItem{
			{VariantID: "item-1", Quantity: 1},
			{VariantID: "item-2", Quantity: 1},
		},
		IncludeDelivery: true,
	})

	result, err := newTestOptimizer().Optimize(context.Background(), m)
	require.NoError(t, err)
	require.NotNil(t, result.CheapestSingleShop)

	assert.Equal(t, int64(1000+2000+1500), result.CheapestSingleShop.TotalCost)
	assert.Equal(t, result.CheapestSingleShop.TotalCost, result.MultiShop.TotalCost)
}

// TestOptimizeIdempotent verifies repeated optimization over the same
// matrix yields identical results.
func TestOptimizeIdempotent(t *testing.T) {
	shops := []*catalog.Shop{
		testShop("shop-a", 45.0, 16.0),
		testShop("shop-b", 45.1, 16.1),
		testShop("shop-c", 45.2, 16.2),
	}
	listings := []*catalog.ShopListing{
		testListing("shop-a", "item-1", 1000),
		testListing("shop-b", "item-1", 900),
		testListing("shop-c", "item-1", 1000),
		testListing("shop-a", "item-2", 500),
		testListing("shop-b", "item-2", 550),
		testListing("shop-c", "item-2", 490),
	}
	m := buildTestMatrix(t, shops, listings, &CompareRequest{Items: []catalog.RequestedItem{
		{VariantID: "item-1", Quantity: 2},
		{VariantID: "item-2", Quantity: 5},
	}})

	opt := newTestOptimizer()
	first, err := opt.Optimize(context.Background(), m)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := opt.Optimize(context.Background(), m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
