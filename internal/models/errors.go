package models

import "errors"

var (
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidOracleName = errors.New("invalid oracle name")
)
