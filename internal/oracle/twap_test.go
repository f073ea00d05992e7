package oracle

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twapConfig() TWAPConfig {
	return TWAPConfig{Name: "eth-twap", Period: day, Window: 3, MaxChange: half()}
}

func TestNewTWAP_SeedsLatestPrice(t *testing.T) {
	o, err := NewTWAP(twapConfig(), wads(100, 110, 120), t0)
	require.NoError(t, err)

	price, err := o.FetchPrice()
	require.NoError(t, err)
	assert.Equal(t, wad(120), price)

	history := o.History()
	require.Len(t, history, 3)
	assert.Equal(t, t0.Add(-2*day), history[0].Timestamp)
	assert.Equal(t, t0, history[2].Timestamp)
	assert.Equal(t, 3, o.Window())
	assert.Equal(t, day, o.Period())
	assert.Equal(t, "eth-twap", o.Name())
}

func TestTWAP_Update(t *testing.T) {
	n, rec := newRecorder()
	o, err := NewTWAP(twapConfig(), wads(100, 110, 120), t0, WithNotifier(n))
	require.NoError(t, err)

	// Not due yet
	committed, err := o.Update(t0.Add(time.Hour), wad(150))
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Empty(t, rec.Events())
	assert.Len(t, o.History(), 3)

	committed, err = o.Update(t0.Add(day), wad(150))
	require.NoError(t, err)
	assert.True(t, committed)

	price, err := o.FetchPrice()
	require.NoError(t, err)
	assert.Equal(t, "126666666666666666666", price.Dec())
	assert.Equal(t, []notify.Kind{notify.KindEpochTriggered, notify.KindPriceChange}, rec.Kinds())

	change := rec.OfKind(notify.KindPriceChange)[0]
	assert.Equal(t, wad(120), change.Old)
	assert.Equal(t, "126666666666666666666", change.New.Dec())
	assert.Equal(t, t0.Add(day), change.Timestamp)

	committed, err = o.Update(t0.Add(2*day), wad(160))
	require.NoError(t, err)
	assert.True(t, committed)

	price, err = o.FetchPrice()
	require.NoError(t, err)
	assert.Equal(t, "143333333333333333333", price.Dec())
	assert.Equal(t, t0.Add(2*day), o.LastUpdate())
}

func TestTWAP_UnchangedAverageSkipsPriceChange(t *testing.T) {
	n, rec := newRecorder()
	o, err := NewTWAP(twapConfig(), wads(100, 100, 100), t0, WithNotifier(n))
	require.NoError(t, err)

	committed, err := o.Update(t0.Add(day), wad(100))
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, []notify.Kind{notify.KindEpochTriggered}, rec.Kinds())
}

func TestTWAP_DeviationBreaksOracle(t *testing.T) {
	n, rec := newRecorder()
	o, err := NewTWAP(twapConfig(), wads(100, 100, 100), t0, WithNotifier(n))
	require.NoError(t, err)

	committed, err := o.Update(t0.Add(day), wad(1000))
	assert.False(t, committed)
	assert.ErrorIs(t, err, ErrDeviationExceeded)
	assert.True(t, o.Broken())

	// Nothing committed
	history := o.History()
	require.Len(t, history, 3)
	assert.Equal(t, wad(100), history[2].Value)
	assert.Equal(t, t0, o.LastUpdate())

	assert.Equal(t, []notify.Kind{notify.KindOracleBroken}, rec.Kinds())
	broken := rec.Events()[0]
	assert.Equal(t, wad(100), broken.Old)
	assert.Equal(t, wad(400), broken.New)

	_, err = o.FetchPrice()
	assert.ErrorIs(t, err, ErrOracleBroken)

	_, err = o.Update(t0.Add(2*day), wad(100))
	assert.ErrorIs(t, err, ErrOracleBroken)
	assert.Len(t, rec.Events(), 1)

	o.Reset()
	price, err := o.FetchPrice()
	require.NoError(t, err)
	assert.Equal(t, wad(100), price)
}

func TestTWAP_RejectsInvalidInput(t *testing.T) {
	o, err := NewTWAP(twapConfig(), wads(100), t0)
	require.NoError(t, err)

	_, err = o.Update(t0.Add(day), new(uint256.Int))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = o.Update(t0.Add(day), nil)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestNewTWAP_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TWAPConfig)
		seed   []*uint256.Int
	}{
		{"missing name", func(c *TWAPConfig) { c.Name = "" }, wads(1)},
		{"zero window", func(c *TWAPConfig) { c.Window = 0 }, wads(1)},
		{"sub-second period", func(c *TWAPConfig) { c.Period = time.Millisecond }, wads(1)},
		{"missing max change", func(c *TWAPConfig) { c.MaxChange = nil }, wads(1)},
		{"empty seed", func(c *TWAPConfig) {}, nil},
		{"seed larger than window", func(c *TWAPConfig) {}, wads(1, 2, 3, 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := twapConfig()
			tt.mutate(&cfg)
			_, err := NewTWAP(cfg, tt.seed, t0)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := NewTWAP(twapConfig(), []*uint256.Int{wad(1), new(uint256.Int)}, t0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestTWAP_ListenerCanReadDuringEmit(t *testing.T) {
	n := notify.NewNotifier()
	o, err := NewTWAP(twapConfig(), wads(100, 110, 120), t0, WithNotifier(n))
	require.NoError(t, err)

	var seen *uint256.Int
	n.Subscribe(func(e notify.Event) {
		if e.Kind == notify.KindPriceChange {
			seen, _ = o.FetchPrice()
		}
	})

	_, err = o.Update(t0.Add(day), wad(150))
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, "126666666666666666666", seen.Dec())
}

func TestTWAP_ConcurrentReaders(t *testing.T) {
	o, err := NewTWAP(twapConfig(), wads(100, 100, 100), t0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if _, err := o.FetchPrice(); err != nil && !errors.Is(err, ErrOracleBroken) {
					t.Errorf("unexpected error: %v", err)
					return
				}
				o.History()
			}
		}()
	}

	for i := 1; i <= 20; i++ {
		_, err := o.Update(t0.Add(time.Duration(i)*day), wad(100+uint64(i)))
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	assert.Equal(t, t0.Add(20*day), o.LastUpdate())
}

var (
	_ Oracle    = (*TWAP)(nil)
	_ Breakable = (*TWAP)(nil)
)
