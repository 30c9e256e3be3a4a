package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_snapshot_loads_total",
		Help: "Total number of snapshot loads by region and result",
	}, []string{"region", "result"})

	snapshotLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_snapshot_load_duration_seconds",
		Help:    "Time taken to load a region snapshot",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"region"})

	snapshotHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_snapshot_hits_total",
		Help: "Total number of fresh snapshot cache hits by region",
	}, []string{"region"})

	snapshotMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_snapshot_misses_total",
		Help: "Total number of snapshot cache misses or stale hits by region",
	}, []string{"region"})

	snapshotAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_snapshot_age_seconds",
		Help: "Age of the cached snapshot by region",
	}, []string{"region"})

	snapshotSizeBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_snapshot_size_bytes",
		Help: "Estimated memory footprint of the cached snapshot by region",
	}, []string{"region"})

	snapshotShops = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_snapshot_shops",
		Help: "Number of shops in the cached snapshot by region",
	}, []string{"region"})
)

// Metrics records catalog cache metrics.
type Metrics struct{}

// NewMetrics creates a catalog metrics recorder.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordLoad records a snapshot load attempt.
func (m *Metrics) RecordLoad(region string, durationSeconds float64, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	snapshotLoads.WithLabelValues(region, result).Inc()
	snapshotLoadDuration.WithLabelValues(region).Observe(durationSeconds)
}

// RecordHit records a fresh cache hit.
func (m *Metrics) RecordHit(region string) {
	snapshotHits.WithLabelValues(region).Inc()
}

// RecordMiss records a miss or stale hit that forced a reload.
func (m *Metrics) RecordMiss(region string) {
	snapshotMisses.WithLabelValues(region).Inc()
}

// RecordSnapshot records gauges describing the currently cached snapshot.
func (m *Metrics) RecordSnapshot(region string, ageSeconds float64, sizeBytes int64, shops int) {
	snapshotAge.WithLabelValues(region).Set(ageSeconds)
	snapshotSizeBytes.WithLabelValues(region).Set(float64(sizeBytes))
	snapshotShops.WithLabelValues(region).Set(float64(shops))
}

// ClearRegion removes the gauges for a region that is no longer cached.
func (m *Metrics) ClearRegion(region string) {
	snapshotAge.DeleteLabelValues(region)
	snapshotSizeBytes.DeleteLabelValues(region)
	snapshotShops.DeleteLabelValues(region)
}
