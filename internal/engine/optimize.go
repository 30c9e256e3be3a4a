package engine

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/matmarket/procure-service/internal/catalog"
)

// Optimizer derives purchasing plans from a comparison matrix: the cheapest
// feasible single-shop plan and a heuristic multi-shop plan.
//
// The multi-shop plan is a greedy per-item minimum assignment, not a
// globally cost-optimal partition; true multi-shop covering is NP-hard. A
// post-pass guarantees the plan never loses to the best single shop.
type Optimizer struct {
	config  *Config
	metrics *MetricsRecorder
	logger  zerolog.Logger
}

// NewOptimizer creates a purchase optimizer.
func NewOptimizer(config *Config, metrics *MetricsRecorder) *Optimizer {
	if metrics == nil {
		metrics = NewMetricsRecorder()
	}
	return &Optimizer{
		config:  config,
		metrics: metrics,
		logger:  log.With().Str("component", "purchase_optimizer").Logger(),
	}
}

// Optimize computes both plans and the savings estimate from a matrix.
func (o *Optimizer) Optimize(ctx context.Context, m *Matrix) (*OptimizationResult, error) {
	start := time.Now()
	defer func() {
		o.metrics.RecordComputation("optimize", time.Since(start))
	}()

	result := &OptimizationResult{}
	if len(m.Items) == 0 {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result.MissingItems = o.missingItems(m)
	result.CheapestSingleShop = o.cheapestSingleShop(m)
	result.MultiShop = o.multiShopGreedy(m)

	// The greedy split can lose to a single shop once per-shop delivery
	// fees stack up; collapse to the single-shop allocation in that case
	// so multi-shop is never the worse plan.
	if single := result.CheapestSingleShop; single != nil && single.TotalCost < result.MultiShop.TotalCost {
		result.MultiShop = o.collapseToSingle(m, single)
	}

	if single := result.CheapestSingleShop; single != nil && single.TotalCost > result.MultiShop.TotalCost {
		result.Savings = single.TotalCost - result.MultiShop.TotalCost
	}
	o.metrics.RecordSavings(result.Savings)

	return result, nil
}

// missingItems returns the variants with zero available shops, in request
// order.
func (o *Optimizer) missingItems(m *Matrix) []string {
	var missing []string
	for i := range m.Items {
		if _, ok := m.BestShop(i); !ok {
			missing = append(missing, m.Items[i].VariantID)
		}
	}
	return missing
}

// cheapestSingleShop evaluates every shop as a sole supplier and returns the
// cheapest one covering all items, or nil when none does. Ties break on
// rating, then verified, then shop ID.
func (o *Optimizer) cheapestSingleShop(m *Matrix) *SingleShopPlan {
	var (
		best     *SingleShopPlan
		bestShop *catalog.Shop
	)

	for s, shop := range m.Shops {
		plan := o.evaluateShop(m, s)
		if !plan.CoversAllItems {
			continue
		}
		switch {
		case best == nil,
			plan.TotalCost < best.TotalCost,
			plan.TotalCost == best.TotalCost && preferSingleShop(shop, bestShop):
			best = plan
			bestShop = shop
		}
	}
	return best
}

// evaluateShop totals one shop as sole supplier: goods for every available
// item plus one delivery fee when delivery is included.
func (o *Optimizer) evaluateShop(m *Matrix, shopIdx int) *SingleShopPlan {
	plan := &SingleShopPlan{
		ShopID:         m.Shops[shopIdx].ID,
		CoversAllItems: true,
	}

	var deliveryFee int64
	for i := range m.Items {
		cell := m.Cell(i, shopIdx)
		if !cell.Available() {
			plan.CoversAllItems = false
			plan.MissingItemIDs = append(plan.MissingItemIDs, m.Items[i].VariantID)
			continue
		}
		plan.TotalCost += cell.GoodsCost
		if cell.DeliveryFeeApplied > deliveryFee {
			deliveryFee = cell.DeliveryFeeApplied
		}
	}
	plan.TotalCost += deliveryFee
	return plan
}

// preferSingleShop breaks single-shop cost ties: higher rating, then
// verified, then smaller shop ID.
func preferSingleShop(a, b *catalog.Shop) bool {
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	if a.Verified != b.Verified {
		return a.Verified
	}
	return a.ID < b.ID
}

// multiShopGreedy assigns each item to its best-tier shop and groups the
// assignments per shop, charging one delivery fee per shop visited.
func (o *Optimizer) multiShopGreedy(m *Matrix) MultiShopPlan {
	type bucket struct {
		variantIDs []string
		goods      int64
		fee        int64
	}
	buckets := make(map[string]*bucket)

	for i := range m.Items {
		shopIdx, ok := m.BestShop(i)
		if !ok {
			continue
		}
		cell := m.Cell(i, shopIdx)
		bk, exists := buckets[cell.ShopID]
		if !exists {
			bk = &bucket{}
			buckets[cell.ShopID] = bk
		}
		bk.variantIDs = append(bk.variantIDs, m.Items[i].VariantID)
		bk.goods += cell.GoodsCost
		if cell.DeliveryFeeApplied > bk.fee {
			bk.fee = cell.DeliveryFeeApplied
		}
	}

	plan := MultiShopPlan{ShopsUsed: len(buckets)}
	plan.Assignments = make([]ShopAssignment, 0, len(buckets))
	for shopID, bk := range buckets {
		subtotal := bk.goods + bk.fee
		plan.Assignments = append(plan.Assignments, ShopAssignment{
			ShopID:     shopID,
			VariantIDs: bk.variantIDs,
			GoodsCost:  bk.goods,
			Subtotal:   subtotal,
		})
		plan.TotalCost += subtotal
	}

	sort.Slice(plan.Assignments, func(i, j int) bool {
		return plan.Assignments[i].ShopID < plan.Assignments[j].ShopID
	})
	return plan
}

// collapseToSingle rewrites the multi-shop plan as the single-shop
// allocation when that shop is cheaper than the greedy split.
func (o *Optimizer) collapseToSingle(m *Matrix, single *SingleShopPlan) MultiShopPlan {
	variantIDs := make([]string, 0, len(m.Items))
	var goods int64
	for s, shop := range m.Shops {
		if shop.ID != single.ShopID {
			continue
		}
		for i := range m.Items {
			variantIDs = append(variantIDs, m.Items[i].VariantID)
			goods += m.Cell(i, s).GoodsCost
		}
		break
	}

	return MultiShopPlan{
		Assignments: []ShopAssignment{{
			ShopID:     single.ShopID,
			VariantIDs: variantIDs,
			GoodsCost:  goods,
			Subtotal:   single.TotalCost,
		}},
		TotalCost: single.TotalCost,
		ShopsUsed: 1,
	}
}
