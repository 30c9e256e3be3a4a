package engine

import (
	"time"

	"github.com/matmarket/procure-service/internal/catalog"
)

// Availability classifies whether one item can actually be bought at one shop.
type Availability int

const (
	// AvailabilityAvailable means the listing satisfies stock and order
	// quantity constraints.
	AvailabilityAvailable Availability = iota

	// AvailabilityInsufficientStock means the shop stocks the item but the
	// effective quantity violates stock or min/max order limits.
	AvailabilityInsufficientStock

	// AvailabilityOutOfStock means the listing is marked out of stock.
	AvailabilityOutOfStock

	// AvailabilityNoListing means the shop does not list the variant at all.
	AvailabilityNoListing
)

// String returns the wire representation of the availability.
func (a Availability) String() string {
	switch a {
	case AvailabilityAvailable:
		return "available"
	case AvailabilityInsufficientStock:
		return "insufficient_stock"
	case AvailabilityOutOfStock:
		return "out_of_stock"
	case AvailabilityNoListing:
		return "no_listing"
	default:
		return "unknown"
	}
}

// PriceTier classifies a comparison cell for UI highlighting.
type PriceTier int

const (
	// TierBest is the single cheapest available cell for an item.
	TierBest PriceTier = iota

	// TierNormal is an available cell within the elevated multiplier of best.
	TierNormal

	// TierElevated is an available cell priced above the elevated multiplier.
	TierElevated

	// TierUnavailable is any cell that cannot be selected.
	TierUnavailable
)

// String returns the wire representation of the tier.
func (t PriceTier) String() string {
	switch t {
	case TierBest:
		return "best"
	case TierNormal:
		return "normal"
	case TierElevated:
		return "elevated"
	case TierUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ComparisonCell is the quote of one requested item at one shop.
// Costs are minor currency units. GoodsCost covers the material alone;
// TotalCost adds the delivery fee when delivery is included.
type ComparisonCell struct {
	VariantID          string
	ShopID             string
	UnitPriceUsed      int64
	GoodsCost          int64
	DeliveryFeeApplied int64
	TotalCost          int64
	Availability       Availability
	Tier               PriceTier
}

// Available reports whether the cell can be selected for purchase.
func (c *ComparisonCell) Available() bool {
	return c.Availability == AvailabilityAvailable
}

// CompareRequest describes one comparison / optimization computation.
type CompareRequest struct {
	Items []catalog.RequestedItem

	// IncludeDelivery adds delivery fees to cell totals and plan costs.
	IncludeDelivery bool

	// RequireDelivery additionally rules out shops that cannot deliver.
	RequireDelivery bool

	// Origin is the delivery destination, used for per-km fees. When nil,
	// per-km fees are computed with a zero distance.
	Origin *catalog.Location
}

// Validate validates the request at the call boundary.
func (r *CompareRequest) Validate(maxItems int) error {
	if len(r.Items) > maxItems {
		return ErrInvalidRequest{Field: "items", Reason: "exceeds maximum allowed"}
	}
	seen := make(map[string]struct{}, len(r.Items))
	for _, item := range r.Items {
		if item.VariantID == "" {
			return ErrInvalidRequest{Field: "items.variantId", Reason: "must be non-empty"}
		}
		if item.Quantity <= 0 {
			return ErrInvalidRequest{Field: "items.quantity", Reason: "must be positive"}
		}
		if item.WasteFactorPct < 0 || item.WasteFactorPct > 100 {
			return ErrInvalidRequest{Field: "items.wasteFactorPct", Reason: "must be between 0 and 100"}
		}
		if _, dup := seen[item.VariantID]; dup {
			return ErrInvalidRequest{Field: "items.variantId", Reason: "duplicate variant " + item.VariantID}
		}
		seen[item.VariantID] = struct{}{}
	}
	if r.RequireDelivery && !r.IncludeDelivery {
		return ErrInvalidRequest{Field: "requireDelivery", Reason: "requires includeDelivery"}
	}
	if r.Origin != nil {
		if r.Origin.Latitude < -90 || r.Origin.Latitude > 90 {
			return ErrInvalidRequest{Field: "origin.latitude", Reason: "must be between -90 and 90"}
		}
		if r.Origin.Longitude < -180 || r.Origin.Longitude > 180 {
			return ErrInvalidRequest{Field: "origin.longitude", Reason: "must be between -180 and 180"}
		}
	}
	return nil
}

// Matrix is the items-by-shops comparison grid. Shops are ordered by ID
// (snapshot order); items keep request order. Cells[i][s] quotes item i at
// shop s.
type Matrix struct {
	Items           []catalog.RequestedItem
	Shops           []*catalog.Shop
	Cells           [][]ComparisonCell
	IncludeDelivery bool
	TakenAt         time.Time

	// bestShop[i] is the index into Shops holding item i's best-tier cell,
	// or -1 when the item has no available cell.
	bestShop []int
}

// Cell returns the cell for an item and shop index.
func (m *Matrix) Cell(itemIdx, shopIdx int) *ComparisonCell {
	return &m.Cells[itemIdx][shopIdx]
}

// BestShop returns the shop index carrying the best tier for an item, or
// false when the item is unavailable everywhere.
func (m *Matrix) BestShop(itemIdx int) (int, bool) {
	if m.bestShop[itemIdx] < 0 {
		return 0, false
	}
	return m.bestShop[itemIdx], true
}

// SingleShopPlan is a purchasing plan sourcing every item from one shop.
// For infeasible shops CoversAllItems is false and MissingItemIDs lists the
// variants the shop cannot supply.
type SingleShopPlan struct {
	ShopID         string
	TotalCost      int64
	CoversAllItems bool
	MissingItemIDs []string
}

// ShopAssignment groups the items bought at one shop of a multi-shop plan.
type ShopAssignment struct {
	ShopID     string
	VariantIDs []string
	GoodsCost  int64 // material cost, what a visitor pays in the shop
	Subtotal   int64 // GoodsCost plus one delivery fee when included
}

// MultiShopPlan splits the request across shops to minimize cost.
type MultiShopPlan struct {
	Assignments []ShopAssignment
	TotalCost   int64
	ShopsUsed   int
}

// OptimizationResult is the outcome of the purchase optimizer.
type OptimizationResult struct {
	// CheapestSingleShop is nil when no single shop covers every item.
	CheapestSingleShop *SingleShopPlan

	MultiShop MultiShopPlan

	// Savings is how much the multi-shop plan saves over the cheapest
	// single shop. Never negative; zero when no single-shop plan exists.
	Savings int64

	// MissingItems lists variants with zero available shops. These are
	// unattainable from the current catalog.
	MissingItems []string
}

// RouteStop is one leg of a visiting route. The closing return-to-start leg,
// when requested, appears as a final stop with an empty ShopID.
type RouteStop struct {
	ShopID                string
	SequenceIndex         int
	Items                 []string
	CashNeeded            int64
	TravelTimeFromPrevMin float64
	DistanceFromPrevKm    float64
}

// RoutePlan is an ordered sequence of shop visits.
type RoutePlan struct {
	Stops                []RouteStop
	TotalDistanceKm      float64
	TotalDurationMinutes float64

	// UnresolvedStops lists requested shops excluded from the route
	// because they are unknown or not geocoded.
	UnresolvedStops []string

	// AlgorithmUsed is "exact" for exhaustive search or
	// "nearest_neighbor_2opt" for the heuristic; heuristic routes carry no
	// optimality guarantee.
	AlgorithmUsed string
}

// Cluster is a zoom-dependent group of shop markers.
type Cluster struct {
	Latitude  float64
	Longitude float64
	Count     int
	ShopIDs   []string
}
