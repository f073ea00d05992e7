package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/keeper"
	"github.com/mohamedkhairy/price-oracle/internal/oracle"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1700000000, 0).UTC()

type brokenOracle struct{}

func (brokenOracle) Name() string { return "broken" }
func (brokenOracle) FetchPrice() (*uint256.Int, error) {
	return nil, oracle.ErrOracleBroken
}
func (brokenOracle) Broken() bool { return true }

func newFixed(t *testing.T, name, price string) oracle.Oracle {
	t.Helper()
	v, err := fixedpoint.ParseDecimal(price, fixedpoint.Precision18)
	require.NoError(t, err)
	o, err := oracle.NewFixed(name, v)
	require.NoError(t, err)
	return o
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Entry{Name: "b", Type: "fixed", Decimals: 18, Oracle: newFixed(t, "b", "1")}))
	require.NoError(t, r.Register(Entry{Name: "a", Type: "fixed", Decimals: 18, Oracle: newFixed(t, "a", "2")}))

	assert.Error(t, r.Register(Entry{Name: "a", Oracle: newFixed(t, "a", "3")}))
	assert.Error(t, r.Register(Entry{Name: "", Oracle: newFixed(t, "x", "3")}))
	assert.Error(t, r.Register(Entry{Name: "nil"}))

	assert.Equal(t, []string{"b", "a"}, r.Names())
	assert.Equal(t, 2, r.Len())

	e, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", e.Oracle.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Status(t *testing.T) {
	r := NewRegistry()
	r.clock = func() time.Time { return t0 }
	require.NoError(t, r.Register(Entry{Name: "usd", Type: "fixed", Decimals: 18, Oracle: newFixed(t, "usd", "1.5")}))
	require.NoError(t, r.Register(Entry{Name: "broken", Type: "twap", Decimals: 18, Oracle: brokenOracle{}}))

	s, ok := r.Status("usd")
	require.True(t, ok)
	assert.Equal(t, "1500000000000000000", s.Price)
	assert.Equal(t, "1.5", s.Display)
	assert.False(t, s.Broken)
	assert.Empty(t, s.Error)
	assert.True(t, s.UpdatedAt.IsZero())

	s, ok = r.Status("broken")
	require.True(t, ok)
	assert.True(t, s.Broken)
	assert.Empty(t, s.Price)
	assert.Contains(t, s.Error, "broken")

	_, ok = r.Status("missing")
	assert.False(t, ok)
}

func TestRegistry_RecordKeeperResults(t *testing.T) {
	r := NewRegistry()
	r.clock = func() time.Time { return t0 }
	require.NoError(t, r.Register(Entry{Name: "usd", Type: "fixed", Decimals: 18, Oracle: newFixed(t, "usd", "1")}))

	r.Record([]keeper.Result{{Oracle: "usd", Err: errors.New("price feed: feed is invalid")}})

	s, _ := r.Status("usd")
	assert.Equal(t, "price feed: feed is invalid", s.Error)
	assert.Equal(t, t0, s.UpdatedAt)
	// The last good price is still served
	assert.Equal(t, "1", s.Display)

	r.Record([]keeper.Result{{Oracle: "usd", Committed: true}})
	s, _ = r.Status("usd")
	assert.Empty(t, s.Error)

	statuses := r.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "usd", statuses[0].Name)
}
