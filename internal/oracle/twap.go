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

// TWAPConfig configures a time-weighted average price oracle
type TWAPConfig struct {
	Name string
	// Period is the minimum time between committed samples
	Period time.Duration
	// Window is the number of samples averaged
	Window int
	// MaxChange is the largest allowed change per epoch as a WAD fraction
	MaxChange *uint256.Int
}

// Validate checks the configuration
func (c TWAPConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if c.Window < 1 {
		return fmt.Errorf("%w: window must be positive, got %d", ErrInvalidConfig, c.Window)
	}
	if c.Period < time.Second {
		return fmt.Errorf("%w: period must be at least 1s, got %s", ErrInvalidConfig, c.Period)
	}
	if c.MaxChange == nil {
		return fmt.Errorf("%w: max change is required", ErrInvalidConfig)
	}
	return nil
}

// TWAP averages the last Window samples, weighting each by the time it was
// current. At most one sample is committed per period and a jump beyond
// MaxChange in the average breaks the oracle.
type TWAP struct {
	base

	gate          *EpochGate
	guard         *DeviationGuard
	history       *RingHistory
	lastGoodPrice *uint256.Int
}

// NewTWAP creates a TWAP oracle seeded with historical values, oldest first.
// Seeds are stamped one period apart ending at now, and the newest seed
// becomes the initial price.
func NewTWAP(cfg TWAPConfig, seed []*uint256.Int, now time.Time, opts ...Option) (*TWAP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &TWAP{}
	if err := t.init(cfg.Name, opts); err != nil {
		return nil, err
	}

	history, err := seedHistory(cfg.Window, seed, cfg.Period, now)
	if err != nil {
		return nil, t.wrap(err)
	}
	gate, err := NewEpochGate(cfg.Period, now)
	if err != nil {
		return nil, t.wrap(err)
	}
	guard, err := NewFractionGuard(cfg.MaxChange)
	if err != nil {
		return nil, t.wrap(err)
	}

	latest, _ := history.Latest()
	t.history = history
	t.gate = gate
	t.guard = guard
	t.lastGoodPrice = latest.Value

	t.log.Info("TWAP oracle initialized",
		zap.Int("window", cfg.Window),
		zap.Duration("period", cfg.Period),
		logger.Price("price", t.lastGoodPrice),
	)
	return t, nil
}

// Update offers a new feed value. It returns true when a new epoch was
// committed and false when the update was not yet due.
func (t *TWAP) Update(now time.Time, value *uint256.Int) (bool, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	events, committed, err := t.apply(now, value)
	t.notifier.Emit(events...)
	return committed, err
}

func (t *TWAP) apply(now time.Time, value *uint256.Int) ([]notify.Event, bool, error) {
	if err := requirePositive("value", value); err != nil {
		return nil, false, t.wrap(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.guard.Broken() {
		return nil, false, t.wrap(ErrOracleBroken)
	}
	if !t.gate.IsDue(now) {
		t.log.Debug("Update not due", zap.Time("next_due", t.gate.NextDue()))
		return nil, false, nil
	}

	next := t.history.Clone()
	if err := next.Push(models.NewPriceSample(value, now)); err != nil {
		return nil, false, t.wrap(err)
	}
	avg, err := timeWeightedAverage(next.Samples(), t.gate.Period())
	if err != nil {
		return nil, false, t.wrap(err)
	}

	if err := t.guard.Check(t.lastGoodPrice, avg); err != nil {
		t.log.Warn("Oracle broken",
			logger.Price("reference", t.lastGoodPrice),
			logger.Price("rejected", avg),
			zap.Error(err),
		)
		return []notify.Event{notify.OracleBroken(t.name, t.lastGoodPrice, avg, now)}, false, t.wrap(err)
	}

	if err := t.gate.Advance(now); err != nil {
		return nil, false, t.wrap(err)
	}
	old := t.lastGoodPrice
	t.history = next
	t.lastGoodPrice = avg

	events := []notify.Event{notify.EpochTriggered(t.name, now)}
	if !old.Eq(avg) {
		events = append(events, notify.PriceChange(t.name, old, avg, now))
	}
	t.log.Debug("Epoch committed", logger.Price("feed", value), logger.Price("price", avg))
	return events, true, nil
}

// FetchPrice returns the last accepted average
func (t *TWAP) FetchPrice() (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.guard.Broken() {
		return nil, t.wrap(ErrOracleBroken)
	}
	return t.lastGoodPrice.Clone(), nil
}

// History returns the committed samples, oldest first
func (t *TWAP) History() []models.PriceSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.Samples()
}

// Period returns the epoch length
func (t *TWAP) Period() time.Duration {
	return t.gate.Period()
}

// Window returns the number of samples averaged
func (t *TWAP) Window() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.Cap()
}

// LastUpdate returns the time of the last committed epoch
func (t *TWAP) LastUpdate() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.gate.LastUpdate()
}

// Broken reports whether the deviation guard has tripped
func (t *TWAP) Broken() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.guard.Broken()
}

// Reset clears a tripped deviation guard. History and price are unchanged.
func (t *TWAP) Reset() {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.guard.Reset()
	t.log.Info("Oracle reset")
}
