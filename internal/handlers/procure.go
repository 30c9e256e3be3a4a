package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/matmarket/procure-service/internal/catalog"
	"github.com/matmarket/procure-service/internal/engine"
)

// ============================================================================
// Procurement Endpoints
// ============================================================================

// RequestedItem represents one material line-item of a procurement request
type RequestedItem struct {
	VariantID      string  `json:"variantId" binding:"required"`
	Quantity       float64 `json:"quantity" binding:"required,gt=0"`
	Unit           string  `json:"unit,omitempty"`
	WasteFactorPct float64 `json:"wasteFactorPct,omitempty" binding:"min=0,max=100"`
}

// Location represents a geographic location
type Location struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
}

// CompareRequest represents a price comparison request
type CompareRequest struct {
	Region          string           `json:"region" binding:"required"`
	Items           []*RequestedItem `json:"items" binding:"required,min=1,max=100"`
	IncludeDelivery bool             `json:"includeDelivery,omitempty"`
	RequireDelivery bool             `json:"requireDelivery,omitempty"`
	Origin          *Location        `json:"origin,omitempty"`
}

// ShopInfo describes one shop column of the comparison matrix
type ShopInfo struct {
	ShopID            string    `json:"shopId"`
	Name              string    `json:"name"`
	Verified          bool      `json:"verified"`
	Rating            float64   `json:"rating"`
	DeliveryAvailable bool      `json:"deliveryAvailable"`
	Location          *Location `json:"location,omitempty"`
}

// ComparisonCell is one item's quote at one shop
type ComparisonCell struct {
	ShopID        string `json:"shopId"`
	UnitPriceUsed int64  `json:"unitPriceUsed"`
	GoodsCost     int64  `json:"goodsCost"`
	DeliveryFee   int64  `json:"deliveryFee,omitempty"`
	TotalCost     int64  `json:"totalCost"`
	Availability  string `json:"availability"`
	Tier          string `json:"tier"`
}

// ComparisonRow holds all quotes for one requested item
type ComparisonRow struct {
	VariantID         string            `json:"variantId"`
	Quantity          float64           `json:"quantity"`
	EffectiveQuantity float64           `json:"effectiveQuantity"`
	Cells             []*ComparisonCell `json:"cells"`
}

// CompareResponse is the full comparison matrix
type CompareResponse struct {
	Region  string           `json:"region"`
	TakenAt string           `json:"takenAt"`
	Shops   []*ShopInfo      `json:"shops"`
	Items   []*ComparisonRow `json:"items"`
}

// SingleShopPlan represents sourcing everything from one shop
type SingleShopPlan struct {
	ShopID    string `json:"shopId"`
	TotalCost int64  `json:"totalCost"`
}

// ShopAssignment represents the items bought at one shop
type ShopAssignment struct {
	ShopID    string   `json:"shopId"`
	Items     []string `json:"items"`
	GoodsCost int64    `json:"goodsCost"`
	Subtotal  int64    `json:"subtotal"`
}

// MultiShopPlan represents a purchase split across shops
type MultiShopPlan struct {
	Assignments []*ShopAssignment `json:"assignments"`
	TotalCost   int64             `json:"totalCost"`
	ShopsUsed   int               `json:"shopsUsed"`
}

// OptimizeResponse is the purchase optimization result
type OptimizeResponse struct {
	CheapestSingleShop *SingleShopPlan `json:"cheapestSingleShop,omitempty"`
	MultiShop          *MultiShopPlan  `json:"multiShop"`
	Savings            int64           `json:"savings"`
	MissingItems       []string        `json:"missingItems,omitempty"`
}

// RouteRequest represents a route planning request. Items are optional;
// when present the multi-shop plan supplies per-stop shopping lists and
// cash estimates.
type RouteRequest struct {
	Region        string           `json:"region" binding:"required"`
	ShopIDs       []string         `json:"shopIds" binding:"required,min=1"`
	Start         *Location        `json:"start" binding:"required"`
	ReturnToStart bool             `json:"returnToStart,omitempty"`
	Items         []*RequestedItem `json:"items,omitempty" binding:"omitempty,max=100"`
}

// RouteStop is one leg of the planned route
type RouteStop struct {
	ShopID             string   `json:"shopId,omitempty"`
	SequenceIndex      int      `json:"sequenceIndex"`
	Items              []string `json:"items,omitempty"`
	CashNeeded         int64    `json:"cashNeeded,omitempty"`
	TravelTimeFromPrev float64  `json:"travelTimeFromPrevMin"`
	DistanceFromPrev   float64  `json:"distanceFromPrevKm"`
}

// RouteResponse is the planned visiting route
type RouteResponse struct {
	Stops                []*RouteStop `json:"stops"`
	TotalDistanceKm      float64      `json:"totalDistanceKm"`
	TotalDurationMinutes float64      `json:"totalDurationMinutes"`
	UnresolvedStops      []string     `json:"unresolvedStops,omitempty"`
	AlgorithmUsed        string       `json:"algorithmUsed"`
}

// Cluster is one map marker cluster
type Cluster struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Count     int      `json:"count"`
	ShopIDs   []string `json:"shopIds"`
}

// Global engine instances (initialized by the application)
var (
	snapshotCache *catalog.Cache
	engineConfig  *engine.Config
	matrixBuilder *engine.MatrixBuilder
	optimizer     *engine.Optimizer
	routePlanner  *engine.RoutePlanner
	clusterer     *engine.Clusterer
)

// InitEngine initializes the engine instances backing the handlers.
// This should be called during application startup.
func InitEngine(cache *catalog.Cache, config *engine.Config, metrics *engine.MetricsRecorder) {
	snapshotCache = cache
	engineConfig = config
	matrixBuilder = engine.NewMatrixBuilder(config, nil, metrics)
	optimizer = engine.NewOptimizer(config, metrics)
	routePlanner = engine.NewRoutePlanner(config, nil, metrics)
	clusterer = engine.NewClusterer(config)
}

// SnapshotCache returns the catalog cache instance
func SnapshotCache() *catalog.Cache {
	return snapshotCache
}

func regionSnapshot(c *gin.Context, region string) (*catalog.Snapshot, bool) {
	if snapshotCache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Catalog cache not initialized"})
		return nil, false
	}
	if !snapshotCache.IsHealthy(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Catalog unavailable or warming up"})
		return nil, false
	}
	snap, err := snapshotCache.Snapshot(c.Request.Context(), region)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return nil, false
	}
	return snap, true
}

func engineError(c *gin.Context, err error) {
	var invalid engine.ErrInvalidRequest
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func toEngineItems(items []*RequestedItem) []catalog.RequestedItem {
	out := make([]catalog.RequestedItem, len(items))
	for i, item := range items {
		out[i] = catalog.RequestedItem{
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			Unit:           catalog.NormalizeUnit(item.Unit),
			WasteFactorPct: item.WasteFactorPct,
		}
	}
	return out
}

func toEngineCompare(req *CompareRequest) *engine.CompareRequest {
	out := &engine.CompareRequest{
		Items:           toEngineItems(req.Items),
		IncludeDelivery: req.IncludeDelivery,
		RequireDelivery: req.RequireDelivery,
	}
	if req.Origin != nil {
		out.Origin = &catalog.Location{
			Latitude:  req.Origin.Latitude,
			Longitude: req.Origin.Longitude,
		}
	}
	return out
}

// Compare handles price matrix computation
// POST /internal/procure/compare
func Compare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, ok := regionSnapshot(c, req.Region)
	if !ok {
		return
	}

	matrix, err := matrixBuilder.Build(c.Request.Context(), snap, toEngineCompare(&req))
	if err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCompareResponse(matrix, snap))
}

func toCompareResponse(m *engine.Matrix, snap *catalog.Snapshot) *CompareResponse {
	shops := make([]*ShopInfo, len(m.Shops))
	for i, shop := range m.Shops {
		info := &ShopInfo{
			ShopID:            shop.ID,
			Name:              shop.Name,
			Verified:          shop.Verified,
			Rating:            shop.Rating,
			DeliveryAvailable: shop.DeliveryAvailable,
		}
		if shop.Location != nil {
			info.Location = &Location{
				Latitude:  shop.Location.Latitude,
				Longitude: shop.Location.Longitude,
			}
		}
		shops[i] = info
	}

	rows := make([]*ComparisonRow, len(m.Items))
	for i, item := range m.Items {
		cells := make([]*ComparisonCell, len(m.Shops))
		for s := range m.Shops {
			cell := m.Cell(i, s)
			cells[s] = &ComparisonCell{
				ShopID:        cell.ShopID,
				UnitPriceUsed: cell.UnitPriceUsed,
				GoodsCost:     cell.GoodsCost,
				DeliveryFee:   cell.DeliveryFeeApplied,
				TotalCost:     cell.TotalCost,
				Availability:  cell.Availability.String(),
				Tier:          cell.Tier.String(),
			}
		}
		rows[i] = &ComparisonRow{
			VariantID:         item.VariantID,
			Quantity:          item.Quantity,
			EffectiveQuantity: item.EffectiveQuantity(),
			Cells:             cells,
		}
	}

	return &CompareResponse{
		Region:  snap.Region,
		TakenAt: snap.TakenAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Shops:   shops,
		Items:   rows,
	}
}

// Optimize handles purchase plan optimization
// POST /internal/procure/optimize
func Optimize(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, ok := regionSnapshot(c, req.Region)
	if !ok {
		return
	}

	matrix, err := matrixBuilder.Build(c.Request.Context(), snap, toEngineCompare(&req))
	if err != nil {
		engineError(c, err)
		return
	}

	result, err := optimizer.Optimize(c.Request.Context(), matrix)
	if err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOptimizeResponse(result))
}

func toOptimizeResponse(result *engine.OptimizationResult) *OptimizeResponse {
	resp := &OptimizeResponse{
		MultiShop:    toMultiShopPlan(&result.MultiShop),
		Savings:      result.Savings,
		MissingItems: result.MissingItems,
	}
	if result.CheapestSingleShop != nil {
		resp.CheapestSingleShop = &SingleShopPlan{
			ShopID:    result.CheapestSingleShop.ShopID,
			TotalCost: result.CheapestSingleShop.TotalCost,
		}
	}
	return resp
}

func toMultiShopPlan(plan *engine.MultiShopPlan) *MultiShopPlan {
	assignments := make([]*ShopAssignment, len(plan.Assignments))
	for i, a := range plan.Assignments {
		assignments[i] = &ShopAssignment{
			ShopID:    a.ShopID,
			Items:     a.VariantIDs,
			GoodsCost: a.GoodsCost,
			Subtotal:  a.Subtotal,
		}
	}
	return &MultiShopPlan{
		Assignments: assignments,
		TotalCost:   plan.TotalCost,
		ShopsUsed:   plan.ShopsUsed,
	}
}

// Route handles shopping route planning
// POST /internal/procure/route
func Route(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, ok := regionSnapshot(c, req.Region)
	if !ok {
		return
	}

	// With items supplied, the multi-shop plan feeds per-stop lists and
	// cash estimates.
	var multi *engine.MultiShopPlan
	if len(req.Items) > 0 {
		matrix, err := matrixBuilder.Build(c.Request.Context(), snap, &engine.CompareRequest{
			Items: toEngineItems(req.Items),
		})
		if err != nil {
			engineError(c, err)
			return
		}
		result, err := optimizer.Optimize(c.Request.Context(), matrix)
		if err != nil {
			engineError(c, err)
			return
		}
		multi = &result.MultiShop
	}

	plan, err := routePlanner.Plan(c.Request.Context(), snap, &engine.RouteRequest{
		ShopIDs:       req.ShopIDs,
		Start:         catalog.Location{Latitude: req.Start.Latitude, Longitude: req.Start.Longitude},
		ReturnToStart: req.ReturnToStart,
	}, multi)
	if err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRouteResponse(plan))
}

func toRouteResponse(plan *engine.RoutePlan) *RouteResponse {
	stops := make([]*RouteStop, len(plan.Stops))
	for i, stop := range plan.Stops {
		stops[i] = &RouteStop{
			ShopID:             stop.ShopID,
			SequenceIndex:      stop.SequenceIndex,
			Items:              stop.Items,
			CashNeeded:         stop.CashNeeded,
			TravelTimeFromPrev: stop.TravelTimeFromPrevMin,
			DistanceFromPrev:   stop.DistanceFromPrevKm,
		}
	}
	return &RouteResponse{
		Stops:                stops,
		TotalDistanceKm:      plan.TotalDistanceKm,
		TotalDurationMinutes: plan.TotalDurationMinutes,
		UnresolvedStops:      plan.UnresolvedStops,
		AlgorithmUsed:        plan.AlgorithmUsed,
	}
}

// Clusters handles map marker clustering
// GET /internal/procure/clusters?region=north&zoom=10
func Clusters(c *gin.Context) {
	region := c.Query("region")
	if region == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "region is required"})
		return
	}
	zoom, err := strconv.Atoi(c.DefaultQuery("zoom", strconv.Itoa(engineConfig.ClusterReferenceZoom)))
	if err != nil || zoom < 0 || zoom > 22 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoom must be between 0 and 22"})
		return
	}

	snap, ok := regionSnapshot(c, region)
	if !ok {
		return
	}

	clusters := clusterer.Cluster(snap, zoom)
	response := make([]*Cluster, len(clusters))
	for i, cl := range clusters {
		response[i] = &Cluster{
			Latitude:  cl.Latitude,
			Longitude: cl.Longitude,
			Count:     cl.Count,
			ShopIDs:   cl.ShopIDs,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"region":   region,
		"zoom":     zoom,
		"clusters": response,
		"total":    len(response),
	})
}
