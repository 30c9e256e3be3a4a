package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	computationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_computation_duration_seconds",
		Help:    "Time taken per engine computation by type",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	}, []string{"type"}) // type: matrix, optimize, route_exact, route_nearest_neighbor_2opt

	computationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_computation_errors_total",
		Help: "Total number of rejected engine requests by type",
	}, []string{"type"})

	requestItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_request_items",
		Help:    "Number of requested line-items per computation",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	matrixShops = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_matrix_shops",
		Help:    "Number of shops per comparison matrix",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 500},
	})

	routeStops = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_route_stops",
		Help:    "Number of resolved stops per planned route",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 10, 12},
	})

	planSavings = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_plan_savings_minor_units",
		Help:    "Savings of the multi-shop plan over the single-shop plan",
		Buckets: []float64{0, 100, 500, 1000, 5000, 10000, 50000},
	})
)

// MetricsRecorder records engine metrics.
type MetricsRecorder struct{}

// NewMetricsRecorder creates an engine metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordComputation records a computation's duration.
func (m *MetricsRecorder) RecordComputation(kind string, d time.Duration) {
	computationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordError records a rejected request.
func (m *MetricsRecorder) RecordError(kind string) {
	computationErrors.WithLabelValues(kind).Inc()
}

// RecordRequestItems records the line-item count of a request.
func (m *MetricsRecorder) RecordRequestItems(n int) {
	requestItems.Observe(float64(n))
}

// RecordMatrixShops records the shop count of a comparison matrix.
func (m *MetricsRecorder) RecordMatrixShops(n int) {
	matrixShops.Observe(float64(n))
}

// RecordRouteStops records the resolved stop count of a route.
func (m *MetricsRecorder) RecordRouteStops(n int) {
	routeStops.Observe(float64(n))
}

// RecordSavings records the savings of an optimization result.
func (m *MetricsRecorder) RecordSavings(minorUnits int64) {
	planSavings.Observe(float64(minorUnits))
}
