package engine

import (
	"math"

	"github.com/matmarket/procure-service/internal/catalog"
)

// DistanceFunc computes the pairwise distance between two points in
// kilometres. Callers may substitute a road-network provider; the engine
// defaults to great-circle distance.
type DistanceFunc func(a, b catalog.Location) float64

// HaversineKm calculates the great-circle distance between two points in
// kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0 // Earth radius km
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// HaversineDistance is the default DistanceFunc.
func HaversineDistance(a, b catalog.Location) float64 {
	return HaversineKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
