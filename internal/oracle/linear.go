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

// Linear moves its price in a straight line from a start price to a target
// over a window. Before the window it reports the start price, after it the
// target.
type Linear struct {
	base

	startPrice *uint256.Int
	endPrice   *uint256.Int
	startTime  time.Time
	endTime    time.Time
}

// NewLinear creates an oracle resting at price from now
func NewLinear(name string, price *uint256.Int, now time.Time, opts ...Option) (*Linear, error) {
	l := &Linear{}
	if err := l.init(name, opts); err != nil {
		return nil, err
	}
	if err := requirePositive("price", price); err != nil {
		return nil, l.wrap(err)
	}
	l.startPrice = price.Clone()
	l.endPrice = price.Clone()
	l.startTime = now
	l.endTime = now

	l.log.Info("Linear oracle initialized", logger.Price("price", price))
	return l, nil
}

// NotifyNewPrice starts a new interpolation window at now, moving from the
// currently interpolated price to endPrice over duration
func (l *Linear) NotifyNewPrice(now time.Time, endPrice *uint256.Int, duration time.Duration) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	events, err := l.apply(now, endPrice, duration)
	l.notifier.Emit(events...)
	return err
}

func (l *Linear) apply(now time.Time, endPrice *uint256.Int, duration time.Duration) ([]notify.Event, error) {
	if err := requirePositive("end price", endPrice); err != nil {
		return nil, l.wrap(err)
	}
	if duration < 0 {
		return nil, l.wrap(fmt.Errorf("%w: negative duration %s", ErrInvalidConfig, duration))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Before(l.startTime) {
		return nil, l.wrap(fmt.Errorf("%w: %s is before window start %s", ErrClockRegression, now, l.startTime))
	}
	start, err := l.priceAt(now)
	if err != nil {
		return nil, l.wrap(err)
	}

	l.startPrice = start
	l.endPrice = endPrice.Clone()
	l.startTime = now
	l.endTime = now.Add(duration)

	l.log.Debug("New target",
		logger.Price("start", start),
		logger.Price("end", endPrice),
		zap.Time("end_time", l.endTime),
	)
	return []notify.Event{notify.PriceChange(l.name, start, endPrice, now)}, nil
}

// FetchPriceAt returns the interpolated price at t
func (l *Linear) FetchPriceAt(t time.Time) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	price, err := l.priceAt(t)
	if err != nil {
		return nil, l.wrap(err)
	}
	return price, nil
}

// FetchPrice returns the interpolated price at the oracle's clock
func (l *Linear) FetchPrice() (*uint256.Int, error) {
	return l.FetchPriceAt(l.clock())
}

func (l *Linear) priceAt(t time.Time) (*uint256.Int, error) {
	if !t.After(l.startTime) {
		return l.startPrice.Clone(), nil
	}
	if !t.Before(l.endTime) {
		return l.endPrice.Clone(), nil
	}

	elapsed := uint256.NewInt(uint64(t.Sub(l.startTime) / time.Second))
	total := uint256.NewInt(uint64(l.endTime.Sub(l.startTime) / time.Second))
	if total.IsZero() {
		return l.endPrice.Clone(), nil
	}

	delta, err := fixedpoint.MulDiv(fixedpoint.AbsDiff(l.endPrice, l.startPrice), elapsed, total)
	if err != nil {
		return nil, err
	}
	if l.endPrice.Lt(l.startPrice) {
		return fixedpoint.Sub(l.startPrice, delta)
	}
	return fixedpoint.Add(l.startPrice, delta)
}

// StartPrice returns the price at the start of the current window
func (l *Linear) StartPrice() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.startPrice.Clone()
}

// EndPrice returns the target of the current window
func (l *Linear) EndPrice() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.endPrice.Clone()
}

// Window returns the start and end of the current window
func (l *Linear) Window() (start, end time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.startTime, l.endTime
}
