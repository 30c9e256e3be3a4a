package catalog

import "time"

// Location represents a shop's geocoded coordinates.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Shop is a seller of building materials with a physical storefront.
// Shops without a Location cannot participate in route planning.
type Shop struct {
	ID                string
	Name              string
	Location          *Location // nil when geocoding is missing
	Verified          bool
	Rating            float64 // 0-5
	DeliveryAvailable bool
	DeliveryFeeBase   int64 // minor currency units
	DeliveryFeePerKm  int64 // minor currency units per kilometre
}

// BulkTier is a price breakpoint that applies once the ordered quantity
// reaches MinQty. Tiers on a listing are kept sorted ascending by MinQty.
type BulkTier struct {
	MinQty float64
	Price  int64 // minor currency units per unit
}

// PromoWindow is the validity interval of a promotional price.
type PromoWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the window (start inclusive,
// end exclusive).
func (w PromoWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ShopListing is one shop's offer for one material variant.
// All money values are int64 minor currency units to keep arithmetic exact.
type ShopListing struct {
	ShopID        string
	VariantID     string
	UnitPrice     int64
	BulkTiers     []BulkTier // ascending by MinQty
	PromoPrice    *int64     // nil when no promotion exists
	Promo         *PromoWindow
	InStock       bool
	StockQuantity *float64 // nil = unlimited stock
	MinOrderQty   float64
	MaxOrderQty   *float64 // nil = no upper bound
	LeadTimeDays  int
}

// RequestedItem is a single material line-item in a procurement request.
type RequestedItem struct {
	VariantID      string
	Quantity       float64
	Unit           string
	WasteFactorPct float64 // 0-100
}

// EffectiveQuantity returns the requested quantity inflated by the waste
// factor. Always >= Quantity for valid waste factors.
func (i RequestedItem) EffectiveQuantity() float64 {
	return i.Quantity * (1 + i.WasteFactorPct/100)
}
