package oracle

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
	"go.uber.org/zap"
)

// DailyRatchetConfig configures a daily ratchet oracle
type DailyRatchetConfig struct {
	Name   string
	Period time.Duration
	// MaxChange caps the appreciation per epoch as a WAD fraction
	MaxChange *uint256.Int
}

// Validate checks the configuration
func (c DailyRatchetConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if c.Period < time.Second {
		return fmt.Errorf("%w: period must be at least 1s, got %s", ErrInvalidConfig, c.Period)
	}
	if c.MaxChange == nil {
		return fmt.Errorf("%w: max change is required", ErrInvalidConfig)
	}
	return nil
}

// DailyRatchet follows a short and a long moving average once per epoch.
// The price only moves when both averages rose, by the lesser of the two
// gains, capped at MaxChange.
type DailyRatchet struct {
	base

	gate     *EpochGate
	maxRatio *uint256.Int

	lastPrice    *uint256.Int
	lastPrice7d  *uint256.Int
	lastPrice30d *uint256.Int
}

// NewDailyRatchet creates the oracle at startPrice with the averages'
// starting values. The first epoch is due one period after now.
func NewDailyRatchet(cfg DailyRatchetConfig, startPrice, short, long *uint256.Int, now time.Time, opts ...Option) (*DailyRatchet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &DailyRatchet{}
	if err := d.init(cfg.Name, opts); err != nil {
		return nil, err
	}
	for field, v := range map[string]*uint256.Int{"start price": startPrice, "short average": short, "long average": long} {
		if err := requirePositive(field, v); err != nil {
			return nil, d.wrap(err)
		}
	}

	maxRatio, err := fixedpoint.Add(fixedpoint.WAD, cfg.MaxChange)
	if err != nil {
		return nil, d.wrap(err)
	}
	gate, err := NewEpochGate(cfg.Period, now)
	if err != nil {
		return nil, d.wrap(err)
	}

	d.gate = gate
	d.maxRatio = maxRatio
	d.lastPrice = startPrice.Clone()
	d.lastPrice7d = short.Clone()
	d.lastPrice30d = long.Clone()

	d.log.Info("Daily ratchet oracle initialized",
		zap.Duration("period", cfg.Period),
		logger.Price("price", d.lastPrice),
	)
	return d, nil
}

// Update offers the current short and long averages. It returns true when
// a due epoch was processed, whether or not the price moved.
func (d *DailyRatchet) Update(now time.Time, short, long *uint256.Int) (bool, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	events, committed, err := d.apply(now, short, long)
	d.notifier.Emit(events...)
	return committed, err
}

func (d *DailyRatchet) apply(now time.Time, short, long *uint256.Int) ([]notify.Event, bool, error) {
	if err := requirePositive("short average", short); err != nil {
		return nil, false, d.wrap(err)
	}
	if err := requirePositive("long average", long); err != nil {
		return nil, false, d.wrap(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.gate.IsDue(now) {
		return nil, false, nil
	}

	newPrice := d.lastPrice
	if short.Gt(d.lastPrice7d) && long.Gt(d.lastPrice30d) {
		ratioShort, err := fixedpoint.MulDiv(short, fixedpoint.WAD, d.lastPrice7d)
		if err != nil {
			return nil, false, d.wrap(err)
		}
		ratioLong, err := fixedpoint.MulDiv(long, fixedpoint.WAD, d.lastPrice30d)
		if err != nil {
			return nil, false, d.wrap(err)
		}
		ratio := fixedpoint.Min(ratioShort, ratioLong)
		if ratio.Gt(d.maxRatio) {
			ratio = d.maxRatio
		}
		if newPrice, err = fixedpoint.MulDiv(d.lastPrice, ratio, fixedpoint.WAD); err != nil {
			return nil, false, d.wrap(err)
		}
	}

	if err := d.gate.Advance(now); err != nil {
		return nil, false, d.wrap(err)
	}
	oldPrice := d.lastPrice
	d.lastPrice = newPrice
	d.lastPrice7d = short.Clone()
	d.lastPrice30d = long.Clone()

	events := []notify.Event{notify.EpochTriggered(d.name, now)}
	if !newPrice.Eq(oldPrice) {
		events = append(events, notify.LastGoodPriceUpdated(d.name, newPrice, now))
		d.log.Debug("Price ratcheted", logger.Price("old", oldPrice), logger.Price("new", newPrice))
	}
	return events, true, nil
}

// FetchPrice returns the current price
func (d *DailyRatchet) FetchPrice() (*uint256.Int, error) {
	return d.LastPrice(), nil
}

// LastPrice returns the current price
func (d *DailyRatchet) LastPrice() *uint256.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastPrice.Clone()
}

// LastPrice7d returns the short average seen at the last epoch
func (d *DailyRatchet) LastPrice7d() *uint256.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastPrice7d.Clone()
}

// LastPrice30d returns the long average seen at the last epoch
func (d *DailyRatchet) LastPrice30d() *uint256.Int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastPrice30d.Clone()
}

// LastUpdate returns the time of the last processed epoch
func (d *DailyRatchet) LastUpdate() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gate.LastUpdate()
}
