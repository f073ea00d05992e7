package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Common precisions, expressed as decimal places
const (
	Precision18 uint8 = 18
	Precision8  uint8 = 8
	Precision6  uint8 = 6

	// MaxDecimals is the largest power of ten that fits in 256 bits
	MaxDecimals uint8 = 77
)

var (
	ErrOverflow       = errors.New("overflow")
	ErrUnderflow      = errors.New("underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// WAD is 1e18, the default fixed-point unit
var WAD = Pow10(Precision18)

// ArithmeticError reports a failed fixed-point operation.
// It is always fatal to the call that produced it.
type ArithmeticError struct {
	Op  string
	Err error
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic error in %s: %v", e.Op, e.Err)
}

func (e *ArithmeticError) Unwrap() error {
	return e.Err
}

func arithErr(op string, err error) error {
	return &ArithmeticError{Op: op, Err: err}
}

// Pow10 returns 10^n. It panics if n exceeds what 256 bits can hold.
func Pow10(n uint8) *uint256.Int {
	if n > MaxDecimals {
		panic(fmt.Sprintf("fixedpoint: 10^%d does not fit in 256 bits", n))
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Add returns a+b, failing on overflow
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, arithErr("add", ErrOverflow)
	}
	return z, nil
}

// Sub returns a-b, failing if b > a
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, arithErr("sub", ErrUnderflow)
	}
	return z, nil
}

// Mul returns a*b, failing on overflow
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, arithErr("mul", ErrOverflow)
	}
	return z, nil
}

// Div returns a/d truncated toward zero
func Div(a, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, arithErr("div", ErrDivisionByZero)
	}
	return new(uint256.Int).Div(a, d), nil
}

// MulDiv returns a*b/d truncated toward zero.
// The intermediate product must fit in 256 bits.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, arithErr("mulDiv", ErrDivisionByZero)
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, arithErr("mulDiv", ErrOverflow)
	}
	return product.Div(product, d), nil
}

// AbsDiff returns |a-b|
func AbsDiff(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Sub(b, a)
	}
	return new(uint256.Int).Sub(a, b)
}

// Scale converts v from one decimal precision to another.
// Reducing precision truncates; increasing precision fails on overflow.
func Scale(v *uint256.Int, fromDecimals, toDecimals uint8) (*uint256.Int, error) {
	if fromDecimals > MaxDecimals || toDecimals > MaxDecimals {
		return nil, arithErr("scale", ErrOverflow)
	}
	switch {
	case fromDecimals == toDecimals:
		return v.Clone(), nil
	case toDecimals > fromDecimals:
		z, overflow := new(uint256.Int).MulOverflow(v, Pow10(toDecimals-fromDecimals))
		if overflow {
			return nil, arithErr("scale", ErrOverflow)
		}
		return z, nil
	default:
		return new(uint256.Int).Div(v, Pow10(fromDecimals-toDecimals)), nil
	}
}

// Min returns the smaller of a and b
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}

// Clone copies v, keeping nil as nil
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}
