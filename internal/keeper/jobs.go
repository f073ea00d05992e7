package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/feed"
)

// Job pushes fresh feed values into one oracle
type Job interface {
	// Name is the name of the oracle the job updates
	Name() string
	// Run reads the job's feeds and updates its oracle. It reports whether
	// the oracle's state moved forward.
	Run(ctx context.Context, now time.Time) (bool, error)
}

// PeriodicUpdater is an oracle updated from a single feed on an epoch schedule
type PeriodicUpdater interface {
	Update(now time.Time, value *uint256.Int) (bool, error)
}

// PairUpdater is an oracle updated from a short and a long feed
type PairUpdater interface {
	Update(now time.Time, short, long *uint256.Int) (bool, error)
}

// FeedUpdater is an oracle updated from a single feed on every observation
type FeedUpdater interface {
	Update(value *uint256.Int) error
}

// TargetUpdater is an oracle that moves toward a target over a duration
type TargetUpdater interface {
	EndPrice() *uint256.Int
	NotifyNewPrice(now time.Time, end *uint256.Int, duration time.Duration) error
}

// PriceSetter is an oracle whose price is replaced outright
type PriceSetter interface {
	SetPrice(price *uint256.Int) error
}

func read(ctx context.Context, name string, f feed.Feed) (*uint256.Int, error) {
	v, err := feed.Read(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s feed: %w", name, err)
	}
	return v, nil
}

type periodicJob struct {
	name   string
	oracle PeriodicUpdater
	feed   feed.Feed
}

// NewPeriodicJob updates a TWAP-style oracle from one feed
func NewPeriodicJob(name string, o PeriodicUpdater, f feed.Feed) Job {
	return &periodicJob{name: name, oracle: o, feed: f}
}

func (j *periodicJob) Name() string { return j.name }

func (j *periodicJob) Run(ctx context.Context, now time.Time) (bool, error) {
	v, err := read(ctx, "price", j.feed)
	if err != nil {
		return false, err
	}
	return j.oracle.Update(now, v)
}

type pairJob struct {
	name        string
	oracle      PairUpdater
	short, long feed.Feed
}

// NewPairJob updates a moving-average or daily-ratchet oracle from two feeds
func NewPairJob(name string, o PairUpdater, short, long feed.Feed) Job {
	return &pairJob{name: name, oracle: o, short: short, long: long}
}

func (j *pairJob) Name() string { return j.name }

func (j *pairJob) Run(ctx context.Context, now time.Time) (bool, error) {
	short, err := read(ctx, "short", j.short)
	if err != nil {
		return false, err
	}
	long, err := read(ctx, "long", j.long)
	if err != nil {
		return false, err
	}
	return j.oracle.Update(now, short, long)
}

type feedJob struct {
	name   string
	oracle FeedUpdater
	feed   feed.Feed
}

// NewFeedJob updates a ratchet oracle from one feed
func NewFeedJob(name string, o FeedUpdater, f feed.Feed) Job {
	return &feedJob{name: name, oracle: o, feed: f}
}

func (j *feedJob) Name() string { return j.name }

func (j *feedJob) Run(ctx context.Context, now time.Time) (bool, error) {
	v, err := read(ctx, "price", j.feed)
	if err != nil {
		return false, err
	}
	if err := j.oracle.Update(v); err != nil {
		return false, err
	}
	return true, nil
}

type targetJob struct {
	name     string
	oracle   TargetUpdater
	feed     feed.Feed
	duration time.Duration
}

// NewTargetJob starts a new interpolation window on a linear oracle
// whenever the target feed changes
func NewTargetJob(name string, o TargetUpdater, f feed.Feed, duration time.Duration) Job {
	return &targetJob{name: name, oracle: o, feed: f, duration: duration}
}

func (j *targetJob) Name() string { return j.name }

func (j *targetJob) Run(ctx context.Context, now time.Time) (bool, error) {
	target, err := read(ctx, "target", j.feed)
	if err != nil {
		return false, err
	}
	if target.Eq(j.oracle.EndPrice()) {
		return false, nil
	}
	if err := j.oracle.NotifyNewPrice(now, target, j.duration); err != nil {
		return false, err
	}
	return true, nil
}

type setJob struct {
	name   string
	oracle PriceSetter
	feed   feed.Feed
}

// NewSetJob copies a feed into a fixed-price oracle
func NewSetJob(name string, o PriceSetter, f feed.Feed) Job {
	return &setJob{name: name, oracle: o, feed: f}
}

func (j *setJob) Name() string { return j.name }

func (j *setJob) Run(ctx context.Context, now time.Time) (bool, error) {
	v, err := read(ctx, "price", j.feed)
	if err != nil {
		return false, err
	}
	if err := j.oracle.SetPrice(v); err != nil {
		return false, err
	}
	return true, nil
}
