package models

import (
	"time"

	"github.com/holiman/uint256"
)

// PriceSample is a single timestamped fixed-point price observation
type PriceSample struct {
	Value     *uint256.Int `json:"value"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewPriceSample copies value so the sample cannot be mutated through the caller's pointer
func NewPriceSample(value *uint256.Int, timestamp time.Time) PriceSample {
	var v *uint256.Int
	if value != nil {
		v = value.Clone()
	}
	return PriceSample{Value: v, Timestamp: timestamp}
}

// Validate validates a PriceSample
func (s PriceSample) Validate() error {
	if s.Value == nil || s.Value.IsZero() {
		return ErrInvalidPrice
	}
	if s.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// Clone returns a deep copy of the sample
func (s PriceSample) Clone() PriceSample {
	return NewPriceSample(s.Value, s.Timestamp)
}

// OracleStatus is the read-side snapshot of an oracle exposed to consumers
type OracleStatus struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Price     string    `json:"price,omitempty"`
	Display   string    `json:"display,omitempty"`
	Decimals  uint8     `json:"decimals"`
	Broken    bool      `json:"broken"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
