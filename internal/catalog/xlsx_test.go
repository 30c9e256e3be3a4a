package catalog

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook assembles an in-memory XLSX with the given sheet rows.
func buildWorkbook(t *testing.T, sheets map[string][][]string) []byte {
	t.Helper()

	f := excelize.NewFile()
	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			values := make([]interface{}, len(row))
			for j, v := range row {
				values[j] = v
			}
			require.NoError(t, f.SetSheetRow(name, cell, &values))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func validSheets() map[string][][]string {
	return map[string][][]string{
		"shops": {
			{"ID", "Name", "Lat", "Lng", "Verified", "Rating", "Delivery", "Delivery Fee Base", "Delivery Fee Per Km"},
			{"shop-a", "Gradnja d.o.o.", "45.8150", "15.9819", "yes", "4.6", "yes", "15.00", "0.50"},
			{"shop-b", "Beton Centar", "", "", "no", "3.9", "no", "", ""},
		},
		"listings": {
			{"Shop ID", "Variant ID", "Unit", "Unit Price", "Bulk Tiers", "Promo Price", "Promo Start", "Promo End", "In Stock", "Stock Quantity", "Min Order Qty", "Max Order Qty", "Lead Time Days"},
			{"shop-a", "tile-600", "m²", "4.60", "11:4.50;50:4.30", "", "", "", "yes", "500", "1", "", "2"},
			{"shop-b", "cement-25kg", "bag", "5,50", "", "4.99", "2025-05-01", "2025-07-01", "yes", "", "", "100", "0"},
		},
	}
}

func TestImportSheet(t *testing.T) {
	content := buildWorkbook(t, validSheets())

	result, err := ImportSheet(content)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Shops, 2)
	shopA := result.Shops[0]
	assert.Equal(t, "shop-a", shopA.ID)
	assert.Equal(t, "Gradnja d.o.o.", shopA.Name)
	require.NotNil(t, shopA.Location)
	assert.InDelta(t, 45.8150, shopA.Location.Latitude, 1e-9)
	assert.True(t, shopA.Verified)
	assert.True(t, shopA.DeliveryAvailable)
	assert.Equal(t, int64(1500), shopA.DeliveryFeeBase)
	assert.Equal(t, int64(50), shopA.DeliveryFeePerKm)

	// shop-b has no coordinates: importable, just not routable.
	assert.Nil(t, result.Shops[1].Location)

	require.Len(t, result.Listings, 2)
	tile := result.Listings[0]
	assert.Equal(t, int64(460), tile.UnitPrice)
	require.Len(t, tile.BulkTiers, 2)
	assert.Equal(t, BulkTier{MinQty: 11, Price: 450}, tile.BulkTiers[0])
	assert.Equal(t, BulkTier{MinQty: 50, Price: 430}, tile.BulkTiers[1])
	require.NotNil(t, tile.StockQuantity)
	assert.Equal(t, 500.0, *tile.StockQuantity)

	// Comma decimal separator and promo window.
	cement := result.Listings[1]
	assert.Equal(t, int64(550), cement.UnitPrice)
	require.NotNil(t, cement.PromoPrice)
	assert.Equal(t, int64(499), *cement.PromoPrice)
	require.NotNil(t, cement.Promo)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), cement.Promo.Start)
	require.NotNil(t, cement.MaxOrderQty)
	assert.Equal(t, 100.0, *cement.MaxOrderQty)
}

// TestImportSheetCollectsRowErrors verifies bad rows are skipped and
// reported without failing the import.
func TestImportSheetCollectsRowErrors(t *testing.T) {
	sheets := validSheets()
	sheets["listings"] = append(sheets["listings"],
		[]string{"shop-a", "bad-price", "pc", "free", "", "", "", "", "yes", "", "", "", ""},
		[]string{"shop-a", "bad-tiers", "pc", "2.00", "50:1.90;10:1.80", "", "", "", "yes", "", "", "", ""},
		[]string{"", "orphan", "pc", "2.00", "", "", "", "", "yes", "", "", "", ""},
	)
	sheets["shops"] = append(sheets["shops"],
		[]string{"shop-c", "Bad Coords", "95.0", "15.0", "no", "", "no", "", ""},
	)
	content := buildWorkbook(t, sheets)

	result, err := ImportSheet(content)
	require.NoError(t, err)

	assert.Len(t, result.Shops, 2)
	assert.Len(t, result.Listings, 2)
	require.Len(t, result.Errors, 4)

	messages := make(map[string]bool)
	for _, rowErr := range result.Errors {
		messages[rowErr.Message] = true
		assert.Greater(t, rowErr.Row, 1)
	}
	assert.True(t, messages["invalid unit price"])
	assert.True(t, messages["bulk tiers must be ascending by quantity"])
	assert.True(t, messages["missing shop id or variant id"])
	assert.True(t, messages["invalid coordinates"])
}

func TestImportSheetUnknownUnitWarns(t *testing.T) {
	sheets := validSheets()
	sheets["listings"] = append(sheets["listings"],
		[]string{"shop-a", "odd-unit", "gross", "2.00", "", "", "", "", "yes", "", "", "", ""},
	)
	content := buildWorkbook(t, sheets)

	result, err := ImportSheet(content)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "gross")
}

func TestImportSheetMissingSheet(t *testing.T) {
	content := buildWorkbook(t, map[string][][]string{
		"shops": {{"ID", "Name"}},
	})

	_, err := ImportSheet(content)
	assert.Error(t, err)
}

func TestImportSheetGarbage(t *testing.T) {
	_, err := ImportSheet([]byte("not an xlsx file"))
	assert.Error(t, err)
}

func TestSheetLoader(t *testing.T) {
	content := buildWorkbook(t, validSheets())
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	loader := &SheetLoader{Path: path}
	snap, err := loader.LoadSnapshot(context.Background(), "north")
	require.NoError(t, err)

	assert.Equal(t, "north", snap.Region)
	assert.Equal(t, 2, snap.ShopCount())
	assert.Equal(t, 2, snap.ListingCount())

	l, ok := snap.Listing("shop-a", "tile-600")
	require.True(t, ok)
	assert.Equal(t, int64(460), l.UnitPrice)
}

func TestSheetLoaderMissingFile(t *testing.T) {
	loader := &SheetLoader{Path: "/nonexistent/prices.xlsx"}
	_, err := loader.LoadSnapshot(context.Background(), "north")
	assert.Error(t, err)
}
