package engine

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/matmarket/procure-service/internal/catalog"
)

// RouteRequest describes a trip to plan over a chosen shop set.
type RouteRequest struct {
	ShopIDs       []string
	Start         catalog.Location
	ReturnToStart bool
}

// Validate validates the route request.
func (r *RouteRequest) Validate(maxStops int) error {
	if len(r.ShopIDs) == 0 {
		return ErrInvalidRequest{Field: "shopIds", Reason: "must have at least one shop"}
	}
	seen := make(map[string]struct{}, len(r.ShopIDs))
	for _, id := range r.ShopIDs {
		if id == "" {
			return ErrInvalidRequest{Field: "shopIds", Reason: "must be non-empty"}
		}
		if _, dup := seen[id]; dup {
			return ErrInvalidRequest{Field: "shopIds", Reason: "duplicate shop " + id}
		}
		seen[id] = struct{}{}
	}
	if len(seen) > maxStops {
		return ErrInvalidRequest{Field: "shopIds", Reason: "exceeds maximum route stops"}
	}
	if r.Start.Latitude < -90 || r.Start.Latitude > 90 {
		return ErrInvalidRequest{Field: "start.latitude", Reason: "must be between -90 and 90"}
	}
	if r.Start.Longitude < -180 || r.Start.Longitude > 180 {
		return ErrInvalidRequest{Field: "start.longitude", Reason: "must be between -180 and 180"}
	}
	return nil
}

// RoutePlanner orders a shop set into a visiting sequence minimizing travel
// distance. Small sets are solved exactly; larger ones fall back to nearest
// neighbor with 2-opt improvement.
type RoutePlanner struct {
	config   *Config
	distance DistanceFunc
	metrics  *MetricsRecorder
	logger   zerolog.Logger
}

// NewRoutePlanner creates a route planner. A nil distance function falls
// back to haversine.
func NewRoutePlanner(config *Config, distance DistanceFunc, metrics *MetricsRecorder) *RoutePlanner {
	if distance == nil {
		distance = HaversineDistance
	}
	if metrics == nil {
		metrics = NewMetricsRecorder()
	}
	return &RoutePlanner{
		config:   config,
		distance: distance,
		metrics:  metrics,
		logger:   log.With().Str("component", "route_planner").Logger(),
	}
}

// Plan computes the visiting route. Shops unknown to the snapshot or
// without coordinates are excluded and reported as unresolved stops. The
// multi-shop plan, when given, supplies each stop's shopping list and cash
// estimate; stops outside the plan get empty lists.
func (p *RoutePlanner) Plan(ctx context.Context, snap *catalog.Snapshot, req *RouteRequest, multi *MultiShopPlan) (*RoutePlan, error) {
	start := time.Now()
	algorithm := "exact"
	defer func() {
		p.metrics.RecordComputation("route_"+algorithm, time.Since(start))
	}()

	if err := req.Validate(p.config.MaxRouteStops); err != nil {
		p.metrics.RecordError("route")
		return nil, err
	}

	plan := &RoutePlan{AlgorithmUsed: "exact"}

	// Resolve coordinates; sort for deterministic search order.
	type stopShop struct {
		id  string
		loc catalog.Location
	}
	resolved := make([]stopShop, 0, len(req.ShopIDs))
	for _, id := range req.ShopIDs {
		shop, ok := snap.Shop(id)
		if !ok || shop.Location == nil {
			plan.UnresolvedStops = append(plan.UnresolvedStops, id)
			continue
		}
		resolved = append(resolved, stopShop{id: id, loc: *shop.Location})
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].id < resolved[j].id })
	sort.Strings(plan.UnresolvedStops)

	n := len(resolved)
	p.metrics.RecordRouteStops(n)
	if n == 0 {
		return plan, nil
	}

	locs := make([]catalog.Location, n)
	ids := make([]string, n)
	for i, s := range resolved {
		locs[i] = s.loc
		ids[i] = s.id
	}

	var order []int
	switch {
	case n == 1:
		order = []int{0}
	case n <= p.config.ExactRouteLimit:
		order = p.exactOrder(ctx, req.Start, locs, ids, req.ReturnToStart)
	default:
		algorithm = "nearest_neighbor_2opt"
		plan.AlgorithmUsed = algorithm
		order = p.heuristicOrder(req.Start, locs, ids, req.ReturnToStart)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	p.buildStops(plan, req, locs, ids, order, multi)
	return plan, nil
}

// exactOrder brute-forces every permutation and keeps the shortest. Equal
// distances break toward the lexicographically smallest shop-id sequence,
// which falls out of iterating permutations of an id-sorted slice in
// lexicographic order and only accepting strict improvements.
func (p *RoutePlanner) exactOrder(ctx context.Context, start catalog.Location, locs []catalog.Location, ids []string, returnToStart bool) []int {
	n := len(locs)
	current := make([]int, n)
	for i := range current {
		current[i] = i
	}

	best := append([]int(nil), current...)
	bestDist := p.orderDistance(start, locs, current, returnToStart)

	for nextPermutation(current) {
		if ctx.Err() != nil {
			break
		}
		if d := p.orderDistance(start, locs, current, returnToStart); d < bestDist {
			bestDist = d
			copy(best, current)
		}
	}
	return best
}

// nextPermutation advances s to its next lexicographic permutation,
// returning false once the last one has been produced.
func nextPermutation(s []int) bool {
	i := len(s) - 2
	for i >= 0 && s[i] >= s[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(s) - 1
	for s[j] <= s[i] {
		j--
	}
	s[i], s[j] = s[j], s[i]
	for l, r := i+1, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
	return true
}

// heuristicOrder builds a nearest-neighbor tour from the start coordinate,
// then runs 2-opt passes until no swap improves the tour or the pass cap is
// reached. No optimality guarantee.
func (p *RoutePlanner) heuristicOrder(start catalog.Location, locs []catalog.Location, ids []string, returnToStart bool) []int {
	n := len(locs)
	visited := make([]bool, n)
	order := make([]int, 0, n)

	from := start
	for len(order) < n {
		next := -1
		var nextDist float64
		for i := 0; i < n; i++ {
			if visited[i] {
				continue
			}
			d := p.distance(from, locs[i])
			// Equal legs break toward the smaller shop id; candidates
			// are id-sorted so the first seen wins.
			if next < 0 || d < nextDist {
				next = i
				nextDist = d
			}
		}
		visited[next] = true
		order = append(order, next)
		from = locs[next]
	}

	// 2-opt: reverse the segment between two stops whenever that shortens
	// the tour.
	for pass := 0; pass < p.config.TwoOptMaxPasses; pass++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				candidate := append([]int(nil), order...)
				reverse(candidate[i : j+1])
				if p.orderDistance(start, locs, candidate, returnToStart) < p.orderDistance(start, locs, order, returnToStart) {
					order = candidate
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return order
}

func reverse(s []int) {
	for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
		s[l], s[r] = s[r], s[l]
	}
}

// orderDistance totals the tour: start to first stop, each leg, and the
// return leg when requested.
func (p *RoutePlanner) orderDistance(start catalog.Location, locs []catalog.Location, order []int, returnToStart bool) float64 {
	total := 0.0
	from := start
	for _, idx := range order {
		total += p.distance(from, locs[idx])
		from = locs[idx]
	}
	if returnToStart {
		total += p.distance(from, start)
	}
	return total
}

// buildStops materializes the ordered stops with per-leg distance, travel
// time, shopping list and cash estimate. The return leg, when requested,
// appears as a trailing stop with an empty shop id and no dwell time.
func (p *RoutePlanner) buildStops(plan *RoutePlan, req *RouteRequest, locs []catalog.Location, ids []string, order []int, multi *MultiShopPlan) {
	assignments := make(map[string]*ShopAssignment)
	if multi != nil {
		for i := range multi.Assignments {
			a := &multi.Assignments[i]
			assignments[a.ShopID] = a
		}
	}

	from := req.Start
	for seq, idx := range order {
		legKm := p.distance(from, locs[idx])
		stop := RouteStop{
			ShopID:                ids[idx],
			SequenceIndex:         seq,
			DistanceFromPrevKm:    legKm,
			TravelTimeFromPrevMin: legKm / p.config.AssumedSpeedKmh * 60,
		}
		if a, ok := assignments[ids[idx]]; ok {
			stop.Items = a.VariantIDs
			stop.CashNeeded = a.GoodsCost
		}
		plan.Stops = append(plan.Stops, stop)
		plan.TotalDistanceKm += legKm
		plan.TotalDurationMinutes += stop.TravelTimeFromPrevMin + p.config.DwellMinutes
		from = locs[idx]
	}

	if req.ReturnToStart && len(order) > 0 {
		legKm := p.distance(from, req.Start)
		stop := RouteStop{
			SequenceIndex:         len(order),
			DistanceFromPrevKm:    legKm,
			TravelTimeFromPrevMin: legKm / p.config.AssumedSpeedKmh * 60,
		}
		plan.Stops = append(plan.Stops, stop)
		plan.TotalDistanceKm += legKm
		plan.TotalDurationMinutes += stop.TravelTimeFromPrevMin
	}
}
