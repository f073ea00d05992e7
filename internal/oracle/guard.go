package oracle

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
)

// DeviationGuard is a latching circuit breaker. A candidate value trips it
// when |candidate - reference| / reference exceeds maxNum / maxDen. Once
// tripped it stays broken until Reset.
type DeviationGuard struct {
	maxNum *uint256.Int
	maxDen *uint256.Int
	broken bool
}

// NewDeviationGuard creates a guard allowing a relative change of num/den
func NewDeviationGuard(num, den *uint256.Int) (*DeviationGuard, error) {
	if num == nil || den == nil || den.IsZero() {
		return nil, fmt.Errorf("%w: deviation limit needs a non-zero denominator", ErrInvalidConfig)
	}
	return &DeviationGuard{maxNum: num.Clone(), maxDen: den.Clone()}, nil
}

// NewFractionGuard creates a guard whose limit is a WAD-scaled fraction,
// e.g. 0.5e18 for fifty percent
func NewFractionGuard(max *uint256.Int) (*DeviationGuard, error) {
	return NewDeviationGuard(max, fixedpoint.WAD)
}

// Exceeds reports whether candidate deviates from reference by more than the
// limit, without changing the guard's state. The comparison is done
// cross-multiplied so no precision is lost to division.
func (g *DeviationGuard) Exceeds(reference, candidate *uint256.Int) (bool, error) {
	if reference == nil || reference.IsZero() {
		return false, fmt.Errorf("%w: reference must be positive", ErrInvalidPrice)
	}
	if candidate == nil {
		return false, fmt.Errorf("%w: candidate is nil", ErrInvalidPrice)
	}
	lhs, err := fixedpoint.Mul(fixedpoint.AbsDiff(candidate, reference), g.maxDen)
	if err != nil {
		return false, err
	}
	rhs, err := fixedpoint.Mul(g.maxNum, reference)
	if err != nil {
		return false, err
	}
	return lhs.Gt(rhs), nil
}

// Check trips the guard and returns ErrDeviationExceeded when candidate is
// out of bounds. On a broken guard it returns ErrOracleBroken.
func (g *DeviationGuard) Check(reference, candidate *uint256.Int) error {
	if g.broken {
		return ErrOracleBroken
	}
	exceeded, err := g.Exceeds(reference, candidate)
	if err != nil {
		return err
	}
	if exceeded {
		g.broken = true
		return fmt.Errorf("%w: %s -> %s", ErrDeviationExceeded, reference.Dec(), candidate.Dec())
	}
	return nil
}

// Trip marks the guard broken
func (g *DeviationGuard) Trip() {
	g.broken = true
}

// Broken reports whether the guard has tripped
func (g *DeviationGuard) Broken() bool {
	return g.broken
}

// Reset clears a tripped guard
func (g *DeviationGuard) Reset() {
	g.broken = false
}

// Limit returns the configured limit as numerator and denominator
func (g *DeviationGuard) Limit() (num, den *uint256.Int) {
	return g.maxNum.Clone(), g.maxDen.Clone()
}
