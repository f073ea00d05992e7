package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Parse reads a base-10 integer string such as "120000000000000000000"
func Parse(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid fixed-point integer %q: %w", s, err)
	}
	return v, nil
}

// MustParse is Parse for constants and tests
func MustParse(s string) *uint256.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromDecimal converts a human-readable decimal ("0.5", "2150") into a
// fixed-point integer with the given number of decimals, truncating any
// digits beyond that precision.
func FromDecimal(d decimal.Decimal, decimals uint8) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %s: %w", d.String(), ErrUnderflow)
	}
	scaled := d.Shift(int32(decimals)).BigInt()
	v, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, arithErr("fromDecimal", ErrOverflow)
	}
	return v, nil
}

// ParseDecimal is FromDecimal on a string
func ParseDecimal(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return FromDecimal(d, decimals)
}

// Format renders v as a decimal string, e.g. Format(1.5e18, 18) == "1.5".
// Only for display; never feed the result back into price arithmetic.
func Format(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return "<nil>"
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).String()
}
