package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/matmarket/procure-service/internal/catalog"
)

// MatrixBuilder assembles the items-by-shops comparison matrix from a
// catalog snapshot.
type MatrixBuilder struct {
	config   *Config
	distance DistanceFunc
	metrics  *MetricsRecorder
	logger   zerolog.Logger
}

// NewMatrixBuilder creates a matrix builder. A nil distance function falls
// back to haversine.
func NewMatrixBuilder(config *Config, distance DistanceFunc, metrics *MetricsRecorder) *MatrixBuilder {
	if distance == nil {
		distance = HaversineDistance
	}
	if metrics == nil {
		metrics = NewMetricsRecorder()
	}
	return &MatrixBuilder{
		config:   config,
		distance: distance,
		metrics:  metrics,
		logger:   log.With().Str("component", "matrix_builder").Logger(),
	}
}

// Build quotes every requested item at every shop of the snapshot and
// assigns display tiers. The result is deterministic for a given snapshot
// and request; promo windows are evaluated against the snapshot's TakenAt.
func (b *MatrixBuilder) Build(ctx context.Context, snap *catalog.Snapshot, req *CompareRequest) (*Matrix, error) {
	start := time.Now()
	defer func() {
		b.metrics.RecordComputation("matrix", time.Since(start))
	}()

	if err := req.Validate(b.config.MaxRequestItems); err != nil {
		b.metrics.RecordError("matrix")
		return nil, err
	}

	b.metrics.RecordRequestItems(len(req.Items))

	shops := snap.Shops()
	b.metrics.RecordMatrixShops(len(shops))

	m := &Matrix{
		Items:           req.Items,
		Shops:           shops,
		Cells:           make([][]ComparisonCell, len(req.Items)),
		IncludeDelivery: req.IncludeDelivery,
		TakenAt:         snap.TakenAt,
		bestShop:        make([]int, len(req.Items)),
	}

	// Delivery distances are per shop, not per cell.
	distances := make([]float64, len(shops))
	if req.Origin != nil {
		for s, shop := range shops {
			if shop.Location != nil {
				distances[s] = b.distance(*req.Origin, *shop.Location)
			}
		}
	}

	for i, item := range req.Items {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		row := make([]ComparisonCell, len(shops))
		for s, shop := range shops {
			listing, _ := snap.Listing(shop.ID, item.VariantID)
			row[s] = QuoteCell(item, shop, listing, QuoteOptions{
				At:              snap.TakenAt,
				IncludeDelivery: req.IncludeDelivery,
				RequireDelivery: req.RequireDelivery,
				DistanceKm:      distances[s],
			})
		}
		m.Cells[i] = row
		m.bestShop[i] = b.assignTiers(row, shops)
	}

	return m, nil
}

// assignTiers marks the single best cell of an item row, then classifies the
// rest relative to the best price. Returns the best shop index, or -1 when
// the whole row is unavailable.
func (b *MatrixBuilder) assignTiers(row []ComparisonCell, shops []*catalog.Shop) int {
	best := -1
	for s := range row {
		if !row[s].Available() {
			continue
		}
		if best < 0 || row[s].TotalCost < row[best].TotalCost {
			best = s
			continue
		}
		// Price ties break on shop attributes for display ordering only.
		if row[s].TotalCost == row[best].TotalCost && preferShop(shops[s], shops[best]) {
			best = s
		}
	}
	if best < 0 {
		return -1
	}

	bestPrice := row[best].TotalCost
	elevatedAbove := int64(float64(bestPrice) * b.config.ElevatedMultiplier)
	for s := range row {
		switch {
		case !row[s].Available():
			row[s].Tier = TierUnavailable
		case s == best:
			row[s].Tier = TierBest
		case row[s].TotalCost > elevatedAbove:
			row[s].Tier = TierElevated
		default:
			row[s].Tier = TierNormal
		}
	}
	return best
}

// preferShop is the display tie-break at equal cost: verified first, then
// higher rating, then smaller shop ID.
func preferShop(a, b *catalog.Shop) bool {
	if a.Verified != b.Verified {
		return a.Verified
	}
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	return a.ID < b.ID
}
