package catalog

import (
	"sort"
	"time"
)

// Snapshot is an immutable per-computation view of the catalog: the shops of
// a region and their listings, as of TakenAt. The engine never refreshes a
// snapshot internally; callers obtain a fresh one from the Cache once the
// TTL has elapsed.
type Snapshot struct {
	Region  string
	TakenAt time.Time

	shops    []*Shop
	shopByID map[string]*Shop
	// listings indexed shopID -> variantID
	listings map[string]map[string]*ShopListing

	listingCount int
}

// NewSnapshot builds a snapshot with lookup indexes. Shops are kept sorted by
// ID so iteration order, and therefore every downstream computation, is
// deterministic. Later duplicates of a (shop, variant) listing win.
func NewSnapshot(region string, takenAt time.Time, shops []*Shop, listings []*ShopListing) *Snapshot {
	s := &Snapshot{
		Region:   region,
		TakenAt:  takenAt,
		shops:    make([]*Shop, len(shops)),
		shopByID: make(map[string]*Shop, len(shops)),
		listings: make(map[string]map[string]*ShopListing),
	}

	copy(s.shops, shops)
	sort.Slice(s.shops, func(i, j int) bool { return s.shops[i].ID < s.shops[j].ID })
	for _, shop := range s.shops {
		s.shopByID[shop.ID] = shop
	}

	for _, l := range listings {
		byVariant, ok := s.listings[l.ShopID]
		if !ok {
			byVariant = make(map[string]*ShopListing)
			s.listings[l.ShopID] = byVariant
		}
		if _, dup := byVariant[l.VariantID]; !dup {
			s.listingCount++
		}
		byVariant[l.VariantID] = l
	}

	return s
}

// Shops returns the region's shops sorted by ID.
func (s *Snapshot) Shops() []*Shop {
	return s.shops
}

// Shop looks up a shop by ID.
func (s *Snapshot) Shop(id string) (*Shop, bool) {
	shop, ok := s.shopByID[id]
	return shop, ok
}

// Listing returns the listing for a variant at a shop, if one exists.
func (s *Snapshot) Listing(shopID, variantID string) (*ShopListing, bool) {
	byVariant, ok := s.listings[shopID]
	if !ok {
		return nil, false
	}
	l, ok := byVariant[variantID]
	return l, ok
}

// ShopCount returns the number of shops in the snapshot.
func (s *Snapshot) ShopCount() int {
	return len(s.shops)
}

// ListingCount returns the number of distinct (shop, variant) listings.
func (s *Snapshot) ListingCount() int {
	return s.listingCount
}

// Age returns how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.TakenAt)
}

// Stale reports whether the snapshot has outlived ttl.
func (s *Snapshot) Stale(now time.Time, ttl time.Duration) bool {
	return s.Age(now) > ttl
}

// EstimatedSizeBytes approximates the snapshot's memory footprint for
// freshness reporting. Rough per-record constants, not an exact accounting.
func (s *Snapshot) EstimatedSizeBytes() int64 {
	const perShop, perListing = 160, 200
	return int64(len(s.shops))*perShop + int64(s.listingCount)*perListing
}
