package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/matmarket/procure-service/internal/catalog"
)

// TestUnitPriceSelection verifies the promo > bulk tier > list price ladder.
func TestUnitPriceSelection(t *testing.T) {
	promoStart := testTakenAt.Add(-time.Hour)
	promoEnd := testTakenAt.Add(time.Hour)

	tests := []struct {
		name     string
		listing  catalog.ShopListing
		qty      float64
		at       time.Time
		expected int64
	}{
		{
			name:     "list price when nothing else applies",
			listing:  catalog.ShopListing{UnitPrice: 500},
			qty:      3,
			at:       testTakenAt,
			expected: 500,
		},
		{
			name: "highest qualifying bulk tier wins",
			listing: catalog.ShopListing{
				UnitPrice: 500,
				BulkTiers: []catalog.BulkTier{
					{MinQty: 10, Price: 450},
					{MinQty: 50, Price: 430},
				},
			},
			qty:      55,
			at:       testTakenAt,
			expected: 430,
		},
		{
			name: "quantity below every tier keeps list price",
			listing: catalog.ShopListing{
				UnitPrice: 500,
				BulkTiers: []catalog.BulkTier{{MinQty: 10, Price: 450}},
			},
			qty:      9.99,
			at:       testTakenAt,
			expected: 500,
		},
		{
			name: "tier threshold is inclusive",
			listing: catalog.ShopListing{
				UnitPrice: 500,
				BulkTiers: []catalog.BulkTier{{MinQty: 10, Price: 450}},
			},
			qty:      10,
			at:       testTakenAt,
			expected: 450,
		},
		{
			name: "in-window promo beats a cheaper bulk tier",
			listing: catalog.ShopListing{
				UnitPrice:  500,
				BulkTiers:  []catalog.BulkTier{{MinQty: 10, Price: 400}},
				PromoPrice: i64ptr(480),
				Promo:      &catalog.PromoWindow{Start: promoStart, End: promoEnd},
			},
			qty:      20,
			at:       testTakenAt,
			expected: 480,
		},
		{
			name: "expired promo is ignored",
			listing: catalog.ShopListing{
				UnitPrice:  500,
				PromoPrice: i64ptr(480),
				Promo:      &catalog.PromoWindow{Start: promoStart, End: promoEnd},
			},
			qty:      1,
			at:       promoEnd.Add(time.Minute),
			expected: 500,
		},
		{
			name: "promo end is exclusive",
			listing: catalog.ShopListing{
				UnitPrice:  500,
				PromoPrice: i64ptr(480),
				Promo:      &catalog.PromoWindow{Start: promoStart, End: promoEnd},
			},
			qty:      1,
			at:       promoEnd,
			expected: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, unitPriceFor(&tt.listing, tt.qty, tt.at))
		})
	}
}

// TestAvailabilityChecks covers stock and order-quantity classification.
func TestAvailabilityChecks(t *testing.T) {
	tests := []struct {
		name     string
		listing  catalog.ShopListing
		qty      float64
		expected Availability
	}{
		{
			name:     "in stock with unlimited quantity",
			listing:  catalog.ShopListing{InStock: true},
			qty:      1000,
			expected: AvailabilityAvailable,
		},
		{
			name:     "out of stock flag wins",
			listing:  catalog.ShopListing{InStock: false, StockQuantity: f64ptr(100)},
			qty:      1,
			expected: AvailabilityOutOfStock,
		},
		{
			name:     "stock below effective quantity",
			listing:  catalog.ShopListing{InStock: true, StockQuantity: f64ptr(10)},
			qty:      10.5,
			expected: AvailabilityInsufficientStock,
		},
		{
			name:     "below minimum order quantity",
			listing:  catalog.ShopListing{InStock: true, MinOrderQty: 5},
			qty:      4,
			expected: AvailabilityInsufficientStock,
		},
		{
			name:     "above maximum order quantity",
			listing:  catalog.ShopListing{InStock: true, MaxOrderQty: f64ptr(50)},
			qty:      51,
			expected: AvailabilityInsufficientStock,
		},
		{
			name:     "exactly at stock boundary",
			listing:  catalog.ShopListing{InStock: true, StockQuantity: f64ptr(10)},
			qty:      10,
			expected: AvailabilityAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, availabilityFor(&tt.listing, tt.qty))
		})
	}
}

// TestQuoteCellWasteFactor verifies the waste factor inflates the quantity
// before tier selection and costing: 10 m2 with 10% waste at 4.50/m2 with a
// tier at 11 units should cost 49.50 at the tier price.
func TestQuoteCellWasteFactor(t *testing.T) {
	shop := testShop("shop-a", 45.0, 16.0)
	listing := testListing("shop-a", "tile-600", 460)
	listing.BulkTiers = []catalog.BulkTier{{MinQty: 11, Price: 450}}

	item := catalog.RequestedItem{VariantID: "tile-600", Quantity: 10, Unit: "m2", WasteFactorPct: 10}
	assert.InDelta(t, 11.0, item.EffectiveQuantity(), 1e-9)

	cell := QuoteCell(item, shop, listing, QuoteOptions{At: testTakenAt})

	assert.Equal(t, int64(450), cell.UnitPriceUsed)
	assert.Equal(t, int64(4950), cell.GoodsCost) // 49.50 in minor units
	assert.Equal(t, AvailabilityAvailable, cell.Availability)
}

// TestQuoteCellNoListing verifies a missing listing yields a defined cell.
func TestQuoteCellNoListing(t *testing.T) {
	shop := testShop("shop-a", 45.0, 16.0)
	item := catalog.RequestedItem{VariantID: "tile-600", Quantity: 1}

	cell := QuoteCell(item, shop, nil, QuoteOptions{At: testTakenAt})

	assert.Equal(t, AvailabilityNoListing, cell.Availability)
	assert.Equal(t, TierUnavailable, cell.Tier)
	assert.Zero(t, cell.TotalCost)
	assert.False(t, cell.Available())
}

func TestQuoteCellDelivery(t *testing.T) {
	shop := testShop("shop-a", 45.0, 16.0)
	shop.DeliveryAvailable = true
	shop.DeliveryFeeBase = 1000
	shop.DeliveryFeePerKm = 50

	listing := testListing("shop-a", "cement-25kg", 600)
	item := catalog.RequestedItem{VariantID: "cement-25kg", Quantity: 4}

	// Delivery included: base + per-km on top of goods.
	cell := QuoteCell(item, shop, listing, QuoteOptions{
		At:              testTakenAt,
		IncludeDelivery: true,
		DistanceKm:      3.5,
	})
	assert.Equal(t, int64(2400), cell.GoodsCost)
	assert.Equal(t, int64(1175), cell.DeliveryFeeApplied)
	assert.Equal(t, int64(3575), cell.TotalCost)

	// Pickup comparison: no delivery fee.
	cell = QuoteCell(item, shop, listing, QuoteOptions{At: testTakenAt})
	assert.Zero(t, cell.DeliveryFeeApplied)
	assert.Equal(t, int64(2400), cell.TotalCost)
}

// TestQuoteCellRequireDelivery verifies a non-delivering shop is ruled out
// entirely when the caller restricts the comparison to deliverable offers.
func TestQuoteCellRequireDelivery(t *testing.T) {
	shop := testShop("shop-a", 45.0, 16.0)
	shop.DeliveryAvailable = false

	listing := testListing("shop-a", "cement-25kg", 600)
	item := catalog.RequestedItem{VariantID: "cement-25kg", Quantity: 1}

	cell := QuoteCell(item, shop, listing, QuoteOptions{
		At:              testTakenAt,
		IncludeDelivery: true,
		RequireDelivery: true,
	})
	assert.Equal(t, AvailabilityNoListing, cell.Availability)
}

// TestLineCostRounding verifies fractional quantities round to the nearest
// minor unit instead of accumulating float error.
func TestLineCostRounding(t *testing.T) {
	assert.Equal(t, int64(1499), lineCost(999, 1.5))  // 1498.5 rounds up
	assert.Equal(t, int64(333), lineCost(1000, 0.333))
	assert.Equal(t, int64(0), lineCost(0, 100))
}
