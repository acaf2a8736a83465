package spectrum

import "errors"

var (
	// ErrValidation is returned when a caller-supplied parameter lies outside
	// its physical or enumerated domain.
	ErrValidation = errors.New("validation error")

	// ErrInconsistentInput is returned when per-eye arrays disagree in shape.
	ErrInconsistentInput = errors.New("inconsistent input")

	// ErrMissingCalibration marks an eye whose energy table is entirely
	// invalid. Such eyes are skipped, never failed.
	ErrMissingCalibration = errors.New("missing calibration")
)
