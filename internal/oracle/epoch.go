package oracle

import (
	"fmt"
	"time"
)

// EpochGate decides whether a periodic update is due. An update is due once
// at least one full period has passed since the last committed epoch.
type EpochGate struct {
	period     time.Duration
	lastUpdate time.Time
}

// NewEpochGate creates a gate whose first epoch is due one period after start
func NewEpochGate(period time.Duration, start time.Time) (*EpochGate, error) {
	if period < time.Second {
		return nil, fmt.Errorf("%w: period must be at least 1s, got %s", ErrInvalidConfig, period)
	}
	if start.IsZero() {
		return nil, fmt.Errorf("%w: start time is required", ErrInvalidConfig)
	}
	return &EpochGate{period: period, lastUpdate: start}, nil
}

// IsDue reports whether now is at least one period after the last update
func (g *EpochGate) IsDue(now time.Time) bool {
	return !now.Before(g.NextDue())
}

// Advance commits an epoch at now. Callers check IsDue first.
func (g *EpochGate) Advance(now time.Time) error {
	if now.Before(g.lastUpdate) {
		return fmt.Errorf("%w: %s is before last update %s", ErrClockRegression, now, g.lastUpdate)
	}
	g.lastUpdate = now
	return nil
}

// LastUpdate returns the time of the last committed epoch
func (g *EpochGate) LastUpdate() time.Time {
	return g.lastUpdate
}

// Period returns the epoch length
func (g *EpochGate) Period() time.Duration {
	return g.period
}

// NextDue returns the earliest time the next epoch may commit
func (g *EpochGate) NextDue() time.Time {
	return g.lastUpdate.Add(g.period)
}
