package oracle

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/models"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultShortWindow = 7
	DefaultLongWindow  = 30
)

// MovingAverageConfig configures a dual-window moving average oracle
type MovingAverageConfig struct {
	Name        string
	Period      time.Duration
	ShortWindow int
	LongWindow  int
	// MaxChange bounds each window's change per epoch as a WAD fraction
	MaxChange *uint256.Int
	// MaxSpread bounds the short average's distance from the long average
	// as a WAD fraction of the long average. Nil disables the check.
	MaxSpread *uint256.Int
}

func (c *MovingAverageConfig) applyDefaults() {
	if c.ShortWindow == 0 {
		c.ShortWindow = DefaultShortWindow
	}
	if c.LongWindow == 0 {
		c.LongWindow = DefaultLongWindow
	}
}

// Validate checks the configuration after defaults are applied
func (c MovingAverageConfig) Validate() error {
	c.applyDefaults()
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if c.ShortWindow < 1 || c.LongWindow < 1 {
		return fmt.Errorf("%w: windows must be positive", ErrInvalidConfig)
	}
	if c.ShortWindow > c.LongWindow {
		return fmt.Errorf("%w: short window %d exceeds long window %d", ErrInvalidConfig, c.ShortWindow, c.LongWindow)
	}
	if c.Period < time.Second {
		return fmt.Errorf("%w: period must be at least 1s, got %s", ErrInvalidConfig, c.Period)
	}
	if c.MaxChange == nil {
		return fmt.Errorf("%w: max change is required", ErrInvalidConfig)
	}
	return nil
}

// MovingAverage keeps a short and a long time-weighted window sharing one
// epoch gate. Consumers read the long-window average.
type MovingAverage struct {
	base

	gate   *EpochGate
	guard  *DeviationGuard
	spread *DeviationGuard

	short *RingHistory
	long  *RingHistory

	lastPrice7d  *uint256.Int
	lastPrice30d *uint256.Int
}

// NewMovingAverage creates the oracle from seed values, oldest first.
// A nil shortSeed takes the newest ShortWindow values of longSeed.
func NewMovingAverage(cfg MovingAverageConfig, shortSeed, longSeed []*uint256.Int, now time.Time, opts ...Option) (*MovingAverage, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &MovingAverage{}
	if err := m.init(cfg.Name, opts); err != nil {
		return nil, err
	}

	if shortSeed == nil {
		start := len(longSeed) - cfg.ShortWindow
		if start < 0 {
			start = 0
		}
		shortSeed = longSeed[start:]
	}

	var err error
	if m.short, err = seedHistory(cfg.ShortWindow, shortSeed, cfg.Period, now); err != nil {
		return nil, m.wrap(fmt.Errorf("short window: %w", err))
	}
	if m.long, err = seedHistory(cfg.LongWindow, longSeed, cfg.Period, now); err != nil {
		return nil, m.wrap(fmt.Errorf("long window: %w", err))
	}
	if m.gate, err = NewEpochGate(cfg.Period, now); err != nil {
		return nil, m.wrap(err)
	}
	if m.guard, err = NewFractionGuard(cfg.MaxChange); err != nil {
		return nil, m.wrap(err)
	}
	if cfg.MaxSpread != nil {
		if m.spread, err = NewFractionGuard(cfg.MaxSpread); err != nil {
			return nil, m.wrap(err)
		}
	}

	shortLatest, _ := m.short.Latest()
	longLatest, _ := m.long.Latest()
	m.lastPrice7d = shortLatest.Value
	m.lastPrice30d = longLatest.Value

	m.log.Info("Moving average oracle initialized",
		zap.Int("short_window", cfg.ShortWindow),
		zap.Int("long_window", cfg.LongWindow),
		zap.Duration("period", cfg.Period),
		logger.Price("price", m.lastPrice30d),
	)
	return m, nil
}

// Update offers new short and long feed values. It returns true when a new
// epoch was committed.
func (m *MovingAverage) Update(now time.Time, short, long *uint256.Int) (bool, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	events, committed, err := m.apply(now, short, long)
	m.notifier.Emit(events...)
	return committed, err
}

func (m *MovingAverage) apply(now time.Time, short, long *uint256.Int) ([]notify.Event, bool, error) {
	if err := requirePositive("short value", short); err != nil {
		return nil, false, m.wrap(err)
	}
	if err := requirePositive("long value", long); err != nil {
		return nil, false, m.wrap(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.guard.Broken() {
		return nil, false, m.wrap(ErrOracleBroken)
	}
	if !m.gate.IsDue(now) {
		return nil, false, nil
	}

	nextShort, avgShort, err := m.candidate(m.short, short, now)
	if err != nil {
		return nil, false, m.wrap(fmt.Errorf("short window: %w", err))
	}
	nextLong, avgLong, err := m.candidate(m.long, long, now)
	if err != nil {
		return nil, false, m.wrap(fmt.Errorf("long window: %w", err))
	}

	if err := m.guard.Check(m.lastPrice7d, avgShort); err != nil {
		return m.broken(now, m.lastPrice7d, avgShort, err)
	}
	if err := m.guard.Check(m.lastPrice30d, avgLong); err != nil {
		return m.broken(now, m.lastPrice30d, avgLong, err)
	}
	if m.spread != nil {
		exceeded, err := m.spread.Exceeds(avgLong, avgShort)
		if err != nil {
			return nil, false, m.wrap(err)
		}
		if exceeded {
			m.guard.Trip()
			err := fmt.Errorf("%w: short average %s too far from long average %s", ErrDeviationExceeded, avgShort.Dec(), avgLong.Dec())
			return m.broken(now, avgLong, avgShort, err)
		}
	}

	if err := m.gate.Advance(now); err != nil {
		return nil, false, m.wrap(err)
	}
	old := m.lastPrice30d
	m.short, m.long = nextShort, nextLong
	m.lastPrice7d, m.lastPrice30d = avgShort, avgLong

	events := []notify.Event{notify.EpochTriggered(m.name, now)}
	if !old.Eq(avgLong) {
		events = append(events, notify.PriceChange(m.name, old, avgLong, now))
	}
	m.log.Debug("Epoch committed", logger.Price("price_7d", avgShort), logger.Price("price_30d", avgLong))
	return events, true, nil
}

func (m *MovingAverage) candidate(h *RingHistory, value *uint256.Int, now time.Time) (*RingHistory, *uint256.Int, error) {
	next := h.Clone()
	if err := next.Push(models.NewPriceSample(value, now)); err != nil {
		return nil, nil, err
	}
	avg, err := timeWeightedAverage(next.Samples(), m.gate.Period())
	if err != nil {
		return nil, nil, err
	}
	return next, avg, nil
}

func (m *MovingAverage) broken(now time.Time, reference, rejected *uint256.Int, err error) ([]notify.Event, bool, error) {
	m.log.Warn("Oracle broken",
		logger.Price("reference", reference),
		logger.Price("rejected", rejected),
		zap.Error(err),
	)
	return []notify.Event{notify.OracleBroken(m.name, reference, rejected, now)}, false, m.wrap(err)
}

// FetchPrice returns the long-window average
func (m *MovingAverage) FetchPrice() (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.guard.Broken() {
		return nil, m.wrap(ErrOracleBroken)
	}
	return m.lastPrice30d.Clone(), nil
}

// LastPrice7d returns the last accepted short-window average
func (m *MovingAverage) LastPrice7d() *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPrice7d.Clone()
}

// LastPrice30d returns the last accepted long-window average
func (m *MovingAverage) LastPrice30d() *uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPrice30d.Clone()
}

// LastUpdate returns the time of the last committed epoch
func (m *MovingAverage) LastUpdate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gate.LastUpdate()
}

// Broken reports whether either guard has tripped
func (m *MovingAverage) Broken() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.guard.Broken()
}

// Reset clears a tripped guard
func (m *MovingAverage) Reset() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guard.Reset()
	m.log.Info("Oracle reset")
}
