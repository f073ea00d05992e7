package oracle

import "errors"

var (
	// ErrOracleBroken is returned by every read of an oracle whose deviation
	// guard has tripped, until the guard is reset.
	ErrOracleBroken = errors.New("oracle is broken")

	// ErrDeviationExceeded is returned by the update that tripped the guard
	ErrDeviationExceeded = errors.New("price deviation exceeds limit")

	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidConfig    = errors.New("invalid oracle config")
	ErrOutOfOrderSample = errors.New("sample timestamp not after latest sample")
	ErrClockRegression  = errors.New("time moved backwards")
	ErrEmptyHistory     = errors.New("history is empty")
)
