package multifactor

import "errors"

// Structural errors are hard failures reported immediately to the caller.
// Statistical edge cases (insufficient forward data, degenerate windows) are
// never errors; they surface as NaN holes in otherwise fully-shaped series.
var (
	// ErrUnknownSecurity is returned when an accessor is given a security
	// outside the engine's configured universe. Distinct from a security
	// that is in the universe but has no value on some date.
	ErrUnknownSecurity = errors.New("security not in engine universe")

	// ErrUnknownDate is returned when an accessor is given a date outside
	// the reference calendar. Distinct from a known date whose
	// cross-section is empty.
	ErrUnknownDate = errors.New("date not in reference calendar")

	// ErrInvalidHorizon is returned for a negative IC horizon. Zero is not
	// invalid: it is the documented sentinel for "use the engine default".
	ErrInvalidHorizon = errors.New("ic horizon must not be negative")

	// ErrInvalidWindow is returned for a non-positive ICIR rolling window.
	ErrInvalidWindow = errors.New("icir window must be positive")

	// ErrEmptyCalendar is returned when the reference security yields no
	// dates inside the query range, leaving nothing to align to.
	ErrEmptyCalendar = errors.New("reference calendar is empty")
)
