package engine

// ErrInvalidRequest is returned when an engine request fails validation at
// the call boundary. Data gaps (missing listings, ungeocoded shops) are not
// errors; they resolve to unavailable cells and unresolved stops.
type ErrInvalidRequest struct {
	Field  string
	Reason string
}

func (e ErrInvalidRequest) Error() string {
	return e.Field + ": " + e.Reason
}

// ErrInvalidConfig is returned when the engine configuration is invalid.
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e ErrInvalidConfig) Error() string {
	return e.Field + ": " + e.Reason
}
