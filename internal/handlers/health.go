package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matmarket/procure-service/internal/database"
)

// RegionFreshness reports the state of one region's cached snapshot
type RegionFreshness struct {
	Region   string  `json:"region"`
	TakenAt  string  `json:"takenAt"`
	AgeSec   float64 `json:"ageSeconds"`
	Stale    bool    `json:"stale"`
	Shops    int     `json:"shops"`
	Listings int     `json:"listings"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Database string            `json:"database"`
	Catalog  string            `json:"catalog"`
	Regions  []RegionFreshness `json:"regions,omitempty"`
}

// HealthCheck handles the health check endpoint
func HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status: "ok",
	}
	healthy := true

	// Check database connection
	if database.Pool() != nil {
		if err := database.Status(c.Request.Context()); err != nil {
			response.Database = "disconnected"
			healthy = false
		} else {
			response.Database = "connected"
		}
	} else {
		response.Database = "not configured"
	}

	// Check catalog cache
	if snapshotCache != nil {
		if snapshotCache.IsHealthy(c.Request.Context()) {
			response.Catalog = "ready"
		} else {
			response.Catalog = "unavailable"
			healthy = false
		}
		for _, f := range snapshotCache.FreshnessReport() {
			response.Regions = append(response.Regions, RegionFreshness{
				Region:   f.Region,
				TakenAt:  f.TakenAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
				AgeSec:   f.Age.Seconds(),
				Stale:    f.Stale,
				Shops:    f.Shops,
				Listings: f.Listings,
			})
		}
	} else {
		response.Catalog = "not configured"
	}

	if !healthy {
		response.Status = "degraded"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
