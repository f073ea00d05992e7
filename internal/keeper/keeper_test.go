package keeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/feed"
	"github.com/mohamedkhairy/price-oracle/internal/oracle"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var t0 = time.Unix(1700000000, 0).UTC()

func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fixedpoint.WAD)
}

func newTWAP(t *testing.T, name string) *oracle.TWAP {
	t.Helper()
	o, err := oracle.NewTWAP(oracle.TWAPConfig{
		Name:      name,
		Period:    day,
		Window:    3,
		MaxChange: fixedpoint.MustParse("500000000000000000"),
	}, []*uint256.Int{wad(100), wad(110), wad(120)}, t0)
	require.NoError(t, err)
	return o
}

func TestKeeper_RunOnce(t *testing.T) {
	twap := newTWAP(t, "eth-twap")
	ratchet, err := oracle.NewRatchet("gmu-ratchet", uint256.NewInt(2000000), uint256.NewInt(2000000))
	require.NoError(t, err)

	twapFeed := feed.NewStaticFeed(wad(150))
	ratchetFeed := feed.NewStaticFeed(uint256.NewInt(2500000))

	k, err := NewKeeper(DefaultConfig(), []Job{
		NewPeriodicJob("eth-twap", twap, twapFeed),
		NewFeedJob("gmu-ratchet", ratchet, ratchetFeed),
	})
	require.NoError(t, err)

	// TWAP not yet due
	results := k.RunOnce(context.Background(), t0.Add(time.Hour))
	require.Len(t, results, 2)
	assert.Equal(t, "eth-twap", results[0].Oracle)
	assert.False(t, results[0].Committed)
	assert.NoError(t, results[0].Err)
	assert.True(t, results[1].Committed)
	assert.Equal(t, uint64(2500000), ratchet.CurrPrice().Uint64())

	results = k.RunOnce(context.Background(), t0.Add(day))
	assert.True(t, results[0].Committed)
	price, err := twap.FetchPrice()
	require.NoError(t, err)
	assert.Equal(t, "126666666666666666666", price.Dec())

	stats := k.GetStats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(3), stats.Updates)
	assert.Equal(t, int64(1), stats.Noops)
	assert.Equal(t, int64(0), stats.Errors)
	assert.Equal(t, t0.Add(day), stats.LastRun)
}

func TestKeeper_InvalidFeedSkipsOracle(t *testing.T) {
	twap := newTWAP(t, "eth-twap")
	f := feed.NewStaticFeed(wad(150))
	f.SetValid(false)

	k, err := NewKeeper(DefaultConfig(), []Job{NewPeriodicJob("eth-twap", twap, f)})
	require.NoError(t, err)

	results := k.RunOnce(context.Background(), t0.Add(day))
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, feed.ErrFeedInvalid)
	assert.Equal(t, t0, twap.LastUpdate())
	assert.Equal(t, int64(1), k.GetStats().Errors)
}

func TestKeeper_BrokenOracleDoesNotStopOthers(t *testing.T) {
	broken := newTWAP(t, "broken")
	healthy := newTWAP(t, "healthy")

	k, err := NewKeeper(DefaultConfig(), []Job{
		NewPeriodicJob("broken", broken, feed.NewStaticFeed(wad(5000))),
		NewPeriodicJob("healthy", healthy, feed.NewStaticFeed(wad(150))),
	})
	require.NoError(t, err)

	results := k.RunOnce(context.Background(), t0.Add(day))
	assert.ErrorIs(t, results[0].Err, oracle.ErrDeviationExceeded)
	assert.True(t, results[1].Committed)
	assert.True(t, broken.Broken())
	assert.False(t, healthy.Broken())
}

func TestKeeper_PairAndTargetJobs(t *testing.T) {
	daily, err := oracle.NewDailyRatchet(oracle.DailyRatchetConfig{
		Name:      "gmu-daily",
		Period:    day,
		MaxChange: fixedpoint.MustParse("100000000000000000"),
	}, wad(2), wad(2000), wad(2000), t0)
	require.NoError(t, err)

	linear, err := oracle.NewLinear("gmu-linear", wad(1), t0)
	require.NoError(t, err)
	target := feed.NewStaticFeed(wad(2))

	k, err := NewKeeper(DefaultConfig(), []Job{
		NewPairJob("gmu-daily", daily, feed.NewStaticFeed(wad(2200)), feed.NewStaticFeed(wad(2150))),
		NewTargetJob("gmu-linear", linear, target, day),
	})
	require.NoError(t, err)

	results := k.RunOnce(context.Background(), t0.Add(day))
	assert.True(t, results[0].Committed)
	assert.True(t, results[1].Committed)
	assert.Equal(t, "2150000000000000000", daily.LastPrice().Dec())
	assert.Equal(t, wad(2), linear.EndPrice())

	// Unchanged target does not restart the window
	results = k.RunOnce(context.Background(), t0.Add(day+time.Hour))
	assert.False(t, results[1].Committed)
	start, _ := linear.Window()
	assert.Equal(t, t0.Add(day), start)
}

func TestKeeper_SetJob(t *testing.T) {
	fixed, err := oracle.NewFixed("usd-gmu", wad(1))
	require.NoError(t, err)

	k, err := NewKeeper(DefaultConfig(), []Job{NewSetJob("usd-gmu", fixed, feed.NewStaticFeed(wad(3)))})
	require.NoError(t, err)

	k.RunOnce(context.Background(), t0)
	price, err := fixed.FetchPrice()
	require.NoError(t, err)
	assert.Equal(t, wad(3), price)
}

type slowJob struct{}

func (slowJob) Name() string { return "slow" }

func (slowJob) Run(ctx context.Context, now time.Time) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestKeeper_JobTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpdateTimeout = 10 * time.Millisecond

	k, err := NewKeeper(cfg, []Job{slowJob{}})
	require.NoError(t, err)

	results := k.RunOnce(context.Background(), t0)
	assert.True(t, errors.Is(results[0].Err, context.DeadlineExceeded))
	assert.Equal(t, "timeout", errorLabel(results[0].Err))
}

func TestKeeper_RunHook(t *testing.T) {
	fixed, err := oracle.NewFixed("usd-gmu", wad(1))
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []Result
	k, err := NewKeeper(DefaultConfig(),
		[]Job{NewSetJob("usd-gmu", fixed, feed.NewStaticFeed(wad(3)))},
		WithRunHook(func(ctx context.Context, results []Result) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, results...)
		}),
	)
	require.NoError(t, err)

	k.RunOnce(context.Background(), t0)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "usd-gmu", seen[0].Oracle)
}

func TestKeeper_StartStop(t *testing.T) {
	fixed, err := oracle.NewFixed("usd-gmu", wad(1))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	k, err := NewKeeper(cfg, []Job{NewSetJob("usd-gmu", fixed, feed.NewStaticFeed(wad(3)))}, WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	require.NoError(t, k.Start())
	assert.True(t, k.IsRunning())
	assert.Error(t, k.Start())

	assert.Eventually(t, func() bool {
		return k.GetStats().Runs >= 2
	}, time.Second, 5*time.Millisecond)

	k.Stop()
	assert.False(t, k.IsRunning())
	k.Stop()
}

func TestNewKeeper_Validation(t *testing.T) {
	fixed, err := oracle.NewFixed("usd-gmu", wad(1))
	require.NoError(t, err)
	job := NewSetJob("usd-gmu", fixed, feed.NewStaticFeed(wad(1)))

	_, err = NewKeeper(Config{}, []Job{job})
	assert.Error(t, err)

	_, err = NewKeeper(DefaultConfig(), []Job{job, job})
	assert.Error(t, err)
}
