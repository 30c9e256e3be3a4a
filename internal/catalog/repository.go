package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads catalog snapshots from Postgres. It implements Loader.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Postgres-backed catalog loader.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LoadSnapshot reads the shops and listings of a region in one read-only
// transaction so the shop set and the prices are mutually consistent.
func (r *Repository) LoadSnapshot(ctx context.Context, region string) (*Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	shops, err := r.loadShops(ctx, tx, region)
	if err != nil {
		return nil, fmt.Errorf("load shops: %w", err)
	}

	listings, err := r.loadListings(ctx, tx, region)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return NewSnapshot(region, time.Now(), shops, listings), nil
}

func (r *Repository) loadShops(ctx context.Context, tx pgx.Tx, region string) ([]*Shop, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, name, lat, lng, verified, rating,
		       delivery_available, delivery_fee_base, delivery_fee_per_km
		FROM shops
		WHERE region = $1 AND active
		ORDER BY id`, region)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shops []*Shop
	for rows.Next() {
		var (
			shop     Shop
			lat, lng *float64
		)
		if err := rows.Scan(
			&shop.ID, &shop.Name, &lat, &lng, &shop.Verified, &shop.Rating,
			&shop.DeliveryAvailable, &shop.DeliveryFeeBase, &shop.DeliveryFeePerKm,
		); err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			shop.Location = &Location{Latitude: *lat, Longitude: *lng}
		}
		shops = append(shops, &shop)
	}
	return shops, rows.Err()
}

func (r *Repository) loadListings(ctx context.Context, tx pgx.Tx, region string) ([]*ShopListing, error) {
	rows, err := tx.Query(ctx, `
		SELECT l.shop_id, l.variant_id, l.unit_price,
		       l.promo_price, l.promo_start, l.promo_end,
		       l.in_stock, l.stock_quantity, l.min_order_qty, l.max_order_qty,
		       l.lead_time_days
		FROM shop_listings l
		JOIN shops s ON s.id = l.shop_id
		WHERE s.region = $1 AND s.active
		ORDER BY l.shop_id, l.variant_id`, region)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byKey := make(map[string]*ShopListing)
	var listings []*ShopListing
	for rows.Next() {
		var (
			l                    ShopListing
			promoStart, promoEnd *time.Time
		)
		if err := rows.Scan(
			&l.ShopID, &l.VariantID, &l.UnitPrice,
			&l.PromoPrice, &promoStart, &promoEnd,
			&l.InStock, &l.StockQuantity, &l.MinOrderQty, &l.MaxOrderQty,
			&l.LeadTimeDays,
		); err != nil {
			return nil, err
		}
		if promoStart != nil && promoEnd != nil {
			l.Promo = &PromoWindow{Start: *promoStart, End: *promoEnd}
		}
		listings = append(listings, &l)
		byKey[l.ShopID+"\x00"+l.VariantID] = &l
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadBulkTiers(ctx, tx, region, byKey); err != nil {
		return nil, fmt.Errorf("load bulk tiers: %w", err)
	}
	return listings, nil
}

// loadBulkTiers attaches tier rows to their listings. The ORDER BY keeps
// tiers ascending by min_qty, which pricing relies on.
func (r *Repository) loadBulkTiers(ctx context.Context, tx pgx.Tx, region string, byKey map[string]*ShopListing) error {
	rows, err := tx.Query(ctx, `
		SELECT t.shop_id, t.variant_id, t.min_qty, t.price
		FROM listing_bulk_tiers t
		JOIN shops s ON s.id = t.shop_id
		WHERE s.region = $1 AND s.active
		ORDER BY t.shop_id, t.variant_id, t.min_qty`, region)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			shopID, variantID string
			tier              BulkTier
		)
		if err := rows.Scan(&shopID, &variantID, &tier.MinQty, &tier.Price); err != nil {
			return err
		}
		if l, ok := byKey[shopID+"\x00"+variantID]; ok {
			l.BulkTiers = append(l.BulkTiers, tier)
		}
	}
	return rows.Err()
}

// SaveSheet upserts imported sheet rows into a region. Listings and tiers of
// the touched shops are replaced wholesale so removed rows don't linger.
func (r *Repository) SaveSheet(ctx context.Context, region string, result *SheetResult) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, shop := range result.Shops {
		var lat, lng *float64
		if shop.Location != nil {
			lat, lng = &shop.Location.Latitude, &shop.Location.Longitude
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO shops (id, region, name, lat, lng, verified, rating,
			                   delivery_available, delivery_fee_base, delivery_fee_per_km, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
			ON CONFLICT (id) DO UPDATE SET
				region = EXCLUDED.region,
				name = EXCLUDED.name,
				lat = EXCLUDED.lat,
				lng = EXCLUDED.lng,
				verified = EXCLUDED.verified,
				rating = EXCLUDED.rating,
				delivery_available = EXCLUDED.delivery_available,
				delivery_fee_base = EXCLUDED.delivery_fee_base,
				delivery_fee_per_km = EXCLUDED.delivery_fee_per_km,
				active = TRUE`,
			shop.ID, region, shop.Name, lat, lng, shop.Verified, shop.Rating,
			shop.DeliveryAvailable, shop.DeliveryFeeBase, shop.DeliveryFeePerKm,
		); err != nil {
			return fmt.Errorf("upsert shop %s: %w", shop.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM listing_bulk_tiers WHERE shop_id = $1`, shop.ID); err != nil {
			return fmt.Errorf("clear tiers for %s: %w", shop.ID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM shop_listings WHERE shop_id = $1`, shop.ID); err != nil {
			return fmt.Errorf("clear listings for %s: %w", shop.ID, err)
		}
	}

	for _, l := range result.Listings {
		var promoStart, promoEnd *time.Time
		if l.Promo != nil {
			promoStart, promoEnd = &l.Promo.Start, &l.Promo.End
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO shop_listings (shop_id, variant_id, unit_price,
			                           promo_price, promo_start, promo_end,
			                           in_stock, stock_quantity, min_order_qty, max_order_qty,
			                           lead_time_days)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			l.ShopID, l.VariantID, l.UnitPrice,
			l.PromoPrice, promoStart, promoEnd,
			l.InStock, l.StockQuantity, l.MinOrderQty, l.MaxOrderQty,
			l.LeadTimeDays,
		); err != nil {
			return fmt.Errorf("insert listing %s/%s: %w", l.ShopID, l.VariantID, err)
		}

		for _, tier := range l.BulkTiers {
			if _, err := tx.Exec(ctx, `
				INSERT INTO listing_bulk_tiers (shop_id, variant_id, min_qty, price)
				VALUES ($1, $2, $3, $4)`,
				l.ShopID, l.VariantID, tier.MinQty, tier.Price,
			); err != nil {
				return fmt.Errorf("insert tier %s/%s: %w", l.ShopID, l.VariantID, err)
			}
		}
	}

	return tx.Commit(ctx)
}
