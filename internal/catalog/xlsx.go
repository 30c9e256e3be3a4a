package catalog

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// Supplier price sheets arrive as XLSX workbooks with a "shops" sheet and a
// "listings" sheet. Headers are matched by normalized name, so column order
// and diacritics in headers do not matter.

const (
	shopsSheet    = "shops"
	listingsSheet = "listings"
)

// RowError records a sheet row that could not be imported.
type RowError struct {
	Sheet   string
	Row     int // 1-based, as shown in spreadsheet software
	Message string
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Sheet, e.Row, e.Message)
}

// SheetResult is the outcome of importing a price sheet.
type SheetResult struct {
	Shops    []*Shop
	Listings []*ShopListing
	Errors   []RowError
	Warnings []string
}

// Snapshot assembles the imported rows into a catalog snapshot.
func (r *SheetResult) Snapshot(region string, takenAt time.Time) *Snapshot {
	return NewSnapshot(region, takenAt, r.Shops, r.Listings)
}

// ImportSheet parses an XLSX price sheet. Rows with problems are collected
// into Errors and skipped; the import itself fails only when the workbook is
// unreadable or a required sheet is missing.
func ImportSheet(content []byte) (*SheetResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	result := &SheetResult{}

	shopRows, err := f.GetRows(shopsSheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", shopsSheet, err)
	}
	result.importShops(shopRows)

	listingRows, err := f.GetRows(listingsSheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", listingsSheet, err)
	}
	result.importListings(listingRows)

	log.Debug().
		Int("shops", len(result.Shops)).
		Int("listings", len(result.Listings)).
		Int("errors", len(result.Errors)).
		Msg("Imported price sheet")

	return result, nil
}

func (r *SheetResult) importShops(rows [][]string) {
	if len(rows) == 0 {
		r.Warnings = append(r.Warnings, "shops sheet is empty")
		return
	}
	cols := headerIndex(rows[0])

	for i, row := range rows[1:] {
		rowNum := i + 2
		get := cellGetter(cols, row)

		id := strings.TrimSpace(get("id"))
		name := strings.TrimSpace(get("name"))
		if id == "" || name == "" {
			if !rowEmpty(row) {
				r.Errors = append(r.Errors, RowError{shopsSheet, rowNum, "missing id or name"})
			}
			continue
		}

		shop := &Shop{
			ID:                id,
			Name:              name,
			Verified:          parseBool(get("verified")),
			DeliveryAvailable: parseBool(get("delivery")),
		}

		if v := get("rating"); v != "" {
			rating, err := strconv.ParseFloat(v, 64)
			if err != nil || rating < 0 || rating > 5 {
				r.Errors = append(r.Errors, RowError{shopsSheet, rowNum, "invalid rating"})
				continue
			}
			shop.Rating = rating
		}

		latStr, lngStr := get("lat"), get("lng")
		if latStr != "" && lngStr != "" {
			lat, latErr := strconv.ParseFloat(latStr, 64)
			lng, lngErr := strconv.ParseFloat(lngStr, 64)
			if latErr != nil || lngErr != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
				r.Errors = append(r.Errors, RowError{shopsSheet, rowNum, "invalid coordinates"})
				continue
			}
			shop.Location = &Location{Latitude: lat, Longitude: lng}
		}

		if v := get("delivery fee base"); v != "" {
			fee, err := parseMoney(v)
			if err != nil {
				r.Errors = append(r.Errors, RowError{shopsSheet, rowNum, "invalid delivery fee base"})
				continue
			}
			shop.DeliveryFeeBase = fee
		}
		if v := get("delivery fee per km"); v != "" {
			fee, err := parseMoney(v)
			if err != nil {
				r.Errors = append(r.Errors, RowError{shopsSheet, rowNum, "invalid delivery fee per km"})
				continue
			}
			shop.DeliveryFeePerKm = fee
		}

		r.Shops = append(r.Shops, shop)
	}
}

func (r *SheetResult) importListings(rows [][]string) {
	if len(rows) == 0 {
		r.Warnings = append(r.Warnings, "listings sheet is empty")
		return
	}
	cols := headerIndex(rows[0])

	for i, row := range rows[1:] {
		rowNum := i + 2
		get := cellGetter(cols, row)

		shopID := strings.TrimSpace(get("shop id"))
		variantID := strings.TrimSpace(get("variant id"))
		if shopID == "" || variantID == "" {
			if !rowEmpty(row) {
				r.Errors = append(r.Errors, RowError{listingsSheet, rowNum, "missing shop id or variant id"})
			}
			continue
		}

		price, err := parseMoney(get("unit price"))
		if err != nil || price <= 0 {
			r.Errors = append(r.Errors, RowError{listingsSheet, rowNum, "invalid unit price"})
			continue
		}

		l := &ShopListing{
			ShopID:    shopID,
			VariantID: variantID,
			UnitPrice: price,
			InStock:   parseBool(get("in stock")),
		}

		if v := get("bulk tiers"); v != "" {
			tiers, err := parseBulkTiers(v)
			if err != nil {
				r.Errors = append(r.Errors, RowError{listingsSheet, rowNum, err.Error()})
				continue
			}
			l.BulkTiers = tiers
		}

		if v := get("promo price"); v != "" {
			promo, err := parseMoney(v)
			if err != nil {
				r.Errors = append(r.Errors, RowError{listingsSheet, rowNum, "invalid promo price"})
				continue
			}
			start, startErr := parseDate(get("promo start"))
			end, endErr := parseDate(get("promo end"))
			if startErr != nil || endErr != nil {
				r.Errors = append(r.Errors, RowError{listingsSheet, rowNum, "promo price without a valid promo window"})
				continue
			}
			l.PromoPrice = &promo
			l.Promo = &PromoWindow{Start: start, End: end}
		}

		if v := get("stock quantity"); v != "" {
			qty, err := strconv.ParseFloat(v, 64)
			if err != nil || qty < 0 {
				r.Errors = append(r.Errors, RowError{listingsSheet, rowNum, "invalid stock quantity"})
				continue
			}
			l.StockQuantity = &qty
		}

		if v := get("min order qty"); v != "" {
			qty, err := strconv.ParseFloat(v, 64)
			if err != nil || qty < 0 {
				r.Errors = append(r.Errors, RowError{listingsSheet, rowNum, "invalid min order qty"})
				continue
			}
			l.MinOrderQty = qty
		}
		if v := get("max order qty"); v != "" {
			qty, err := strconv.ParseFloat(v, 64)
			if err != nil || qty <= 0 {
				r.Errors = append(r.Errors, RowError{listingsSheet, rowNum, "invalid max order qty"})
				continue
			}
			l.MaxOrderQty = &qty
		}

		if v := get("lead time days"); v != "" {
			days, err := strconv.Atoi(v)
			if err != nil || days < 0 {
				r.Errors = append(r.Errors, RowError{listingsSheet, rowNum, "invalid lead time"})
				continue
			}
			l.LeadTimeDays = days
		}

		if unit := get("unit"); unit != "" {
			if _, known := unitSynonyms[NormalizeUnit(unit)]; !known {
				r.Warnings = append(r.Warnings, fmt.Sprintf("%s row %d: unrecognized unit %q", listingsSheet, rowNum, unit))
			}
		}

		r.Listings = append(r.Listings, l)
	}
}

// parseBulkTiers parses "10:4.50;50:4.30" into ascending tiers.
func parseBulkTiers(raw string) ([]BulkTier, error) {
	var tiers []BulkTier
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		qtyPrice := strings.SplitN(part, ":", 2)
		if len(qtyPrice) != 2 {
			return nil, fmt.Errorf("invalid bulk tier %q", part)
		}
		qty, err := strconv.ParseFloat(strings.TrimSpace(qtyPrice[0]), 64)
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("invalid bulk tier quantity %q", qtyPrice[0])
		}
		price, err := parseMoney(qtyPrice[1])
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid bulk tier price %q", qtyPrice[1])
		}
		if n := len(tiers); n > 0 && tiers[n-1].MinQty >= qty {
			return nil, fmt.Errorf("bulk tiers must be ascending by quantity")
		}
		tiers = append(tiers, BulkTier{MinQty: qty, Price: price})
	}
	return tiers, nil
}

// parseMoney parses a decimal price into minor currency units.
func parseMoney(raw string) (int64, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 100)), nil
}

func parseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// headerIndex maps normalized header names to column positions.
func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := NormalizeName(h)
		if key == "" {
			continue
		}
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return cols
}

func cellGetter(cols map[string]int, row []string) func(string) string {
	return func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
}

// SheetLoader adapts a price sheet on disk to the Loader interface, so the
// CLI can run the engine without a database. The region argument is ignored;
// a sheet is its own region.
type SheetLoader struct {
	Path   string
	Region string
}

// LoadSnapshot reads and imports the sheet at Path.
func (s *SheetLoader) LoadSnapshot(ctx context.Context, region string) (*Snapshot, error) {
	content, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read price sheet: %w", err)
	}
	result, err := ImportSheet(content)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		log.Warn().Int("rows", len(result.Errors)).Str("path", s.Path).Msg("Price sheet rows skipped")
	}
	r := s.Region
	if r == "" {
		r = region
	}
	return result.Snapshot(r, time.Now()), nil
}
