package engine

import (
	"time"

	"github.com/matmarket/procure-service/internal/catalog"
)

var testTakenAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testShop(id string, lat, lng float64) *catalog.Shop {
	return &catalog.Shop{
		ID:       id,
		Name:     "Shop " + id,
		Location: &catalog.Location{Latitude: lat, Longitude: lng},
		Rating:   4.0,
	}
}

func testListing(shopID, variantID string, unitPrice int64) *catalog.ShopListing {
	return &catalog.ShopListing{
		ShopID:    shopID,
		VariantID: variantID,
		UnitPrice: unitPrice,
		InStock:   true,
	}
}

func testSnapshot(shops []*catalog.Shop, listings []*catalog.ShopListing) *catalog.Snapshot {
	return catalog.NewSnapshot("test-region", testTakenAt, shops, listings)
}

func f64ptr(v float64) *float64 { return &v }

func i64ptr(v int64) *int64 { return &v }
