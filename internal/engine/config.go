package engine

// Config holds the tunables of the procurement engine.
// It is loaded from the service config file or environment variables.
type Config struct {
	// Comparison
	ElevatedMultiplier float64 `mapstructure:"elevated_multiplier" env:"ELEVATED_MULTIPLIER" default:"1.2"`
	MaxRequestItems    int     `mapstructure:"max_request_items" env:"MAX_REQUEST_ITEMS" default:"100"`

	// Route planning. Exact search is factorial in the stop count, so the
	// exact/heuristic split keeps worst-case latency bounded.
	ExactRouteLimit int     `mapstructure:"exact_route_limit" env:"EXACT_ROUTE_LIMIT" default:"8"`
	MaxRouteStops   int     `mapstructure:"max_route_stops" env:"MAX_ROUTE_STOPS" default:"12"`
	TwoOptMaxPasses int     `mapstructure:"two_opt_max_passes" env:"TWO_OPT_MAX_PASSES" default:"200"`
	AssumedSpeedKmh float64 `mapstructure:"assumed_speed_kmh" env:"ASSUMED_SPEED_KMH" default:"30"`
	DwellMinutes    float64 `mapstructure:"dwell_minutes" env:"DWELL_MINUTES" default:"10"`

	// Map clustering
	ClusterBaseDegrees   float64 `mapstructure:"cluster_base_degrees" env:"CLUSTER_BASE_DEGREES" default:"0.5"`
	ClusterReferenceZoom int     `mapstructure:"cluster_reference_zoom" env:"CLUSTER_REFERENCE_ZOOM" default:"10"`
	MarkerZoomThreshold  int     `mapstructure:"marker_zoom_threshold" env:"MARKER_ZOOM_THRESHOLD" default:"14"`
}

// Defaults returns the default engine configuration.
func Defaults() *Config {
	return &Config{
		ElevatedMultiplier:   1.2,
		MaxRequestItems:      100,
		ExactRouteLimit:      8,
		MaxRouteStops:        12,
		TwoOptMaxPasses:      200,
		AssumedSpeedKmh:      30,
		DwellMinutes:         10,
		ClusterBaseDegrees:   0.5,
		ClusterReferenceZoom: 10,
		MarkerZoomThreshold:  14,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.ElevatedMultiplier <= 1.0 {
		return ErrInvalidConfig{Field: "elevated_multiplier", Reason: "must be greater than 1.0"}
	}
	if c.MaxRequestItems < 1 {
		return ErrInvalidConfig{Field: "max_request_items", Reason: "must be at least 1"}
	}
	if c.ExactRouteLimit < 2 {
		return ErrInvalidConfig{Field: "exact_route_limit", Reason: "must be at least 2"}
	}
	if c.MaxRouteStops < c.ExactRouteLimit {
		return ErrInvalidConfig{Field: "max_route_stops", Reason: "must be >= exact_route_limit"}
	}
	if c.TwoOptMaxPasses < 1 {
		return ErrInvalidConfig{Field: "two_opt_max_passes", Reason: "must be at least 1"}
	}
	if c.AssumedSpeedKmh <= 0 {
		return ErrInvalidConfig{Field: "assumed_speed_kmh", Reason: "must be positive"}
	}
	if c.DwellMinutes < 0 {
		return ErrInvalidConfig{Field: "dwell_minutes", Reason: "must be non-negative"}
	}
	if c.ClusterBaseDegrees <= 0 {
		return ErrInvalidConfig{Field: "cluster_base_degrees", Reason: "must be positive"}
	}
	if c.MarkerZoomThreshold < c.ClusterReferenceZoom {
		return ErrInvalidConfig{Field: "marker_zoom_threshold", Reason: "must be >= cluster_reference_zoom"}
	}
	return nil
}
