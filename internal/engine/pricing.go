package engine

import (
	"math"
	"time"

	"github.com/matmarket/procure-service/internal/catalog"
)

// QuoteOptions parameterize a single cell quote.
type QuoteOptions struct {
	// At is the instant promo windows are evaluated against. The matrix
	// builder passes the snapshot's TakenAt so a computation is a pure
	// function of its snapshot, never of the wall clock.
	At time.Time

	// IncludeDelivery adds the shop's delivery fee to the total.
	IncludeDelivery bool

	// RequireDelivery marks cells of non-delivering shops unavailable.
	RequireDelivery bool

	// DistanceKm is the delivery distance used for per-km fees.
	DistanceKm float64
}

// QuoteCell computes the comparison cell for one requested item at one shop.
// It is a total function: every input resolves to a defined cell, with data
// gaps expressed through the availability field. Costs are still computed
// for non-available cells so the UI can display them.
func QuoteCell(item catalog.RequestedItem, shop *catalog.Shop, listing *catalog.ShopListing, opts QuoteOptions) ComparisonCell {
	cell := ComparisonCell{
		VariantID: item.VariantID,
		ShopID:    shop.ID,
		Tier:      TierUnavailable,
	}

	if listing == nil {
		cell.Availability = AvailabilityNoListing
		return cell
	}

	effQty := item.EffectiveQuantity()
	cell.UnitPriceUsed = unitPriceFor(listing, effQty, opts.At)
	cell.GoodsCost = lineCost(cell.UnitPriceUsed, effQty)
	cell.Availability = availabilityFor(listing, effQty)

	if opts.IncludeDelivery && shop.DeliveryAvailable {
		cell.DeliveryFeeApplied = deliveryFee(shop, opts.DistanceKm)
	}
	cell.TotalCost = cell.GoodsCost + cell.DeliveryFeeApplied

	if opts.RequireDelivery && !shop.DeliveryAvailable {
		// The shop cannot serve a delivery-dependent comparison at all.
		cell.Availability = AvailabilityNoListing
	}

	return cell
}

// unitPriceFor picks the unit price: an in-window promo price wins, else the
// highest bulk tier whose threshold the effective quantity reaches, else the
// list price. Tiers are ascending by MinQty.
func unitPriceFor(listing *catalog.ShopListing, effQty float64, at time.Time) int64 {
	if listing.PromoPrice != nil && listing.Promo != nil && listing.Promo.Contains(at) {
		return *listing.PromoPrice
	}

	price := listing.UnitPrice
	for _, tier := range listing.BulkTiers {
		if tier.MinQty > effQty {
			break
		}
		price = tier.Price
	}
	return price
}

// availabilityFor applies the stock and order-quantity checks.
func availabilityFor(listing *catalog.ShopListing, effQty float64) Availability {
	if !listing.InStock {
		return AvailabilityOutOfStock
	}
	if listing.StockQuantity != nil && *listing.StockQuantity < effQty {
		return AvailabilityInsufficientStock
	}
	if effQty < listing.MinOrderQty {
		return AvailabilityInsufficientStock
	}
	if listing.MaxOrderQty != nil && effQty > *listing.MaxOrderQty {
		return AvailabilityInsufficientStock
	}
	return AvailabilityAvailable
}

// deliveryFee computes base plus per-km fee, rounded to minor units.
func deliveryFee(shop *catalog.Shop, distanceKm float64) int64 {
	return shop.DeliveryFeeBase + int64(math.Round(float64(shop.DeliveryFeePerKm)*distanceKm))
}

// lineCost rounds unit price times quantity to the nearest minor unit.
// Quantities are fractional (m², litres), prices are not.
func lineCost(unitPrice int64, qty float64) int64 {
	return int64(math.Round(float64(unitPrice) * qty))
}
