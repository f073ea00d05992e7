package oracle

import (
	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
)

// Ratchet tracks an upstream feed but only ever moves up: when the feed
// rises the price rises by the same ratio, when it falls the price holds.
type Ratchet struct {
	base

	currPrice     *uint256.Int
	currFeedPrice *uint256.Int
}

// NewRatchet creates a ratchet starting at startPrice with the feed at initialFeed
func NewRatchet(name string, startPrice, initialFeed *uint256.Int, opts ...Option) (*Ratchet, error) {
	r := &Ratchet{}
	if err := r.init(name, opts); err != nil {
		return nil, err
	}
	if err := requirePositive("start price", startPrice); err != nil {
		return nil, r.wrap(err)
	}
	if err := requirePositive("initial feed", initialFeed); err != nil {
		return nil, r.wrap(err)
	}
	r.currPrice = startPrice.Clone()
	r.currFeedPrice = initialFeed.Clone()

	r.log.Info("Ratchet oracle initialized",
		logger.Price("price", r.currPrice),
		logger.Price("feed", r.currFeedPrice),
	)
	return r, nil
}

// Update records a new feed value and ratchets the price up if the feed rose
func (r *Ratchet) Update(feedValue *uint256.Int) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	events, err := r.apply(feedValue)
	r.notifier.Emit(events...)
	return err
}

func (r *Ratchet) apply(feedValue *uint256.Int) ([]notify.Event, error) {
	if err := requirePositive("feed value", feedValue); err != nil {
		return nil, r.wrap(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prevFeed := r.currFeedPrice
	oldPrice := r.currPrice
	newPrice := oldPrice

	if feedValue.Gt(prevFeed) {
		scaled, err := fixedpoint.MulDiv(oldPrice, feedValue, prevFeed)
		if err != nil {
			return nil, r.wrap(err)
		}
		newPrice = scaled
	}

	now := r.clock()
	r.currFeedPrice = feedValue.Clone()
	r.currPrice = newPrice

	events := []notify.Event{notify.FeedPriceChange(r.name, prevFeed, feedValue, now)}
	if !newPrice.Eq(oldPrice) {
		events = append(events, notify.PriceChange(r.name, oldPrice, newPrice, now))
		r.log.Debug("Price ratcheted", logger.Price("old", oldPrice), logger.Price("new", newPrice))
	}
	return events, nil
}

// FetchPrice returns the current ratcheted price
func (r *Ratchet) FetchPrice() (*uint256.Int, error) {
	return r.CurrPrice(), nil
}

// CurrPrice returns the current ratcheted price
func (r *Ratchet) CurrPrice() *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currPrice.Clone()
}

// CurrFeedPrice returns the last observed feed value
func (r *Ratchet) CurrFeedPrice() *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currFeedPrice.Clone()
}
