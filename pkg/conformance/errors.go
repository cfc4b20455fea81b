package conformance

import "errors"

var (
	// ErrPlan is returned for plans that cannot be checked
	ErrPlan = errors.New("invalid conformance plan")
	// ErrUnknownVariant is returned when asking for a target variant with no defaults
	ErrUnknownVariant = errors.New("unknown target variant")
	// ErrSetup is returned when the program does not go through entry and scheduler as expected
	ErrSetup = errors.New("setup failed")
	// ErrTrace is returned when a stored trace cannot be read
	ErrTrace = errors.New("invalid trace")
)

// Conformance violations, reported in verdicts
var (
	ErrNoEvents          = errors.New("no events observed")
	ErrNoOrigin          = errors.New("no interrupt vector events to anchor the time origin")
	ErrEarlyActivation   = errors.New("activation before its ideal instant")
	ErrJitterExceeded    = errors.New("jitter budget exceeded")
	ErrUnfair            = errors.New("background ran before every periodic routine")
	ErrBackgroundMissing = errors.New("background routine never ran")
)
