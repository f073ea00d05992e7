package fixedpoint

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	got, err := MulDiv(MustParse("2150000000000000000"), MustParse("2350000000000000000000"), MustParse("2150000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "2350000000000000000", got.Dec())

	// Truncates, never rounds up
	got, err = MulDiv(uint256.NewInt(2666666), uint256.NewInt(3000000), uint256.NewInt(2000000))
	require.NoError(t, err)
	assert.Equal(t, uint64(3999999), got.Uint64())
}

func TestMulDiv_DivisionByZero(t *testing.T) {
	_, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDivisionByZero))

	var arithErr *ArithmeticError
	require.True(t, errors.As(err, &arithErr))
	assert.Equal(t, "mulDiv", arithErr.Op)
}

func TestMulDiv_IntermediateOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, err := MulDiv(max, uint256.NewInt(2), uint256.NewInt(4))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestAddSubMul(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	_, err := Add(max, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Sub(uint256.NewInt(1), uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrUnderflow)

	_, err = Mul(max, uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrOverflow)

	sum, err := Add(uint256.NewInt(40), uint256.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sum.Uint64())

	_, err = Div(uint256.NewInt(1), new(uint256.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestScale(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		from, to uint8
		expected string
	}{
		{"chainlink to gmu", "250000000", Precision8, Precision6, "2500000"},
		{"truncates on reduction", "199999999", Precision8, Precision6, "1999999"},
		{"six to eighteen", "2000000", Precision6, Precision18, "2000000000000000000"},
		{"same precision", "12345", Precision18, Precision18, "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Scale(MustParse(tt.value), tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Dec())
		})
	}
}

func TestScale_Overflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, err := Scale(max, Precision6, Precision18)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestAbsDiffAndMin(t *testing.T) {
	a, b := uint256.NewInt(10), uint256.NewInt(25)
	assert.Equal(t, uint64(15), AbsDiff(a, b).Uint64())
	assert.Equal(t, uint64(15), AbsDiff(b, a).Uint64())
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, a, Min(b, a))
}

func TestDecimalConversion(t *testing.T) {
	half, err := ParseDecimal("0.5", Precision18)
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", half.Dec())

	truncated, err := FromDecimal(decimal.RequireFromString("1.23456789"), Precision6)
	require.NoError(t, err)
	assert.Equal(t, "1234567", truncated.Dec())

	_, err = ParseDecimal("-1", Precision18)
	assert.Error(t, err)

	_, err = ParseDecimal("abc", Precision18)
	assert.Error(t, err)

	assert.Equal(t, "1.5", Format(MustParse("1500000000000000000"), Precision18))
	assert.Equal(t, "2.5", Format(uint256.NewInt(2500000), Precision6))
	assert.Equal(t, "<nil>", Format(nil, Precision18))
}

func TestPow10(t *testing.T) {
	assert.Equal(t, "1000000000000000000", WAD.Dec())
	assert.Equal(t, uint64(1000000), Pow10(Precision6).Uint64())
	assert.Panics(t, func() { Pow10(78) })
}
