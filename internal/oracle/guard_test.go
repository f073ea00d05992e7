package oracle

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviationGuard_Exceeds(t *testing.T) {
	guard, err := NewFractionGuard(half())
	require.NoError(t, err)

	tests := []struct {
		name      string
		reference uint64
		candidate uint64
		expected  bool
	}{
		{"unchanged", 100, 100, false},
		{"rise at limit", 100, 150, false},
		{"rise past limit", 100, 151, true},
		{"fall at limit", 100, 50, false},
		{"fall past limit", 100, 49, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.Exceeds(wad(tt.reference), wad(tt.candidate))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
	assert.False(t, guard.Broken(), "Exceeds must not trip the guard")
}

func TestDeviationGuard_CheckLatches(t *testing.T) {
	guard, err := NewFractionGuard(half())
	require.NoError(t, err)

	require.NoError(t, guard.Check(wad(100), wad(120)))

	err = guard.Check(wad(100), wad(200))
	assert.ErrorIs(t, err, ErrDeviationExceeded)
	assert.True(t, guard.Broken())

	// Stays broken even for an in-bounds value
	err = guard.Check(wad(100), wad(100))
	assert.ErrorIs(t, err, ErrOracleBroken)

	guard.Reset()
	assert.False(t, guard.Broken())
	assert.NoError(t, guard.Check(wad(100), wad(100)))
}

func TestDeviationGuard_ZeroReference(t *testing.T) {
	guard, err := NewFractionGuard(half())
	require.NoError(t, err)

	_, err = guard.Exceeds(new(uint256.Int), wad(1))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestNewDeviationGuard_ZeroDenominator(t *testing.T) {
	_, err := NewDeviationGuard(uint256.NewInt(1), uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
