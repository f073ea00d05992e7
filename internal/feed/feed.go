// Package feed provides the upstream price sources oracles are updated from.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
)

var (
	// ErrFeedInvalid is returned when a feed reports itself invalid or stale
	ErrFeedInvalid = errors.New("feed is invalid")

	// ErrNoValue is returned when a feed has no value to report
	ErrNoValue = errors.New("feed has no value")
)

// Feed is an upstream price source
type Feed interface {
	CurrentPrice(ctx context.Context) (*uint256.Int, error)
}

// Validator is optionally implemented by feeds that can report their own health.
// A feed without a validator is treated as valid.
type Validator interface {
	IsValid(ctx context.Context) (bool, error)
}

// Read validates the feed if it supports validation and returns its price
func Read(ctx context.Context, f Feed) (*uint256.Int, error) {
	if v, ok := f.(Validator); ok {
		valid, err := v.IsValid(ctx)
		if err != nil {
			return nil, fmt.Errorf("validate feed: %w", err)
		}
		if !valid {
			return nil, ErrFeedInvalid
		}
	}
	price, err := f.CurrentPrice(ctx)
	if err != nil {
		return nil, err
	}
	if price == nil || price.IsZero() {
		return nil, ErrNoValue
	}
	return price, nil
}

// StaticFeed returns a settable value
type StaticFeed struct {
	mu    sync.RWMutex
	value *uint256.Int
	valid bool
}

// NewStaticFeed creates a valid feed holding value
func NewStaticFeed(value *uint256.Int) *StaticFeed {
	return &StaticFeed{value: fixedpoint.Clone(value), valid: true}
}

// Set replaces the value
func (f *StaticFeed) Set(value *uint256.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = fixedpoint.Clone(value)
}

// SetValid marks the feed valid or invalid
func (f *StaticFeed) SetValid(valid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = valid
}

// CurrentPrice returns the stored value
func (f *StaticFeed) CurrentPrice(ctx context.Context) (*uint256.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.value == nil {
		return nil, ErrNoValue
	}
	return f.value.Clone(), nil
}

// IsValid reports the flag set by SetValid
func (f *StaticFeed) IsValid(ctx context.Context) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.valid, nil
}

// FuncFeed adapts an in-process read, such as another oracle's accessor
type FuncFeed func(ctx context.Context) (*uint256.Int, error)

// CurrentPrice calls the function
func (f FuncFeed) CurrentPrice(ctx context.Context) (*uint256.Int, error) {
	return f(ctx)
}

// ScaledFeed converts a feed's values from one precision to another,
// e.g. an 8-decimal aggregator into a 6-decimal price
type ScaledFeed struct {
	feed Feed
	from uint8
	to   uint8
}

// NewScaledFeed wraps feed, converting from one decimals precision to another
func NewScaledFeed(feed Feed, from, to uint8) (*ScaledFeed, error) {
	if from > fixedpoint.MaxDecimals || to > fixedpoint.MaxDecimals {
		return nil, fmt.Errorf("unsupported precision %d -> %d", from, to)
	}
	return &ScaledFeed{feed: feed, from: from, to: to}, nil
}

// CurrentPrice reads the underlying feed and rescales the value
func (s *ScaledFeed) CurrentPrice(ctx context.Context) (*uint256.Int, error) {
	price, err := Read(ctx, s.feed)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Scale(price, s.from, s.to)
}
