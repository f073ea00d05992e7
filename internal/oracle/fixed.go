package oracle

import (
	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
)

// Fixed reports a price set by an operator
type Fixed struct {
	base

	price *uint256.Int
}

// NewFixed creates a fixed-price oracle
func NewFixed(name string, price *uint256.Int, opts ...Option) (*Fixed, error) {
	f := &Fixed{}
	if err := f.init(name, opts); err != nil {
		return nil, err
	}
	if err := requirePositive("price", price); err != nil {
		return nil, f.wrap(err)
	}
	f.price = price.Clone()
	f.log.Info("Fixed oracle initialized", logger.Price("price", price))
	return f, nil
}

// SetPrice replaces the price, emitting PriceChange when it differs
func (f *Fixed) SetPrice(price *uint256.Int) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := requirePositive("price", price); err != nil {
		return f.wrap(err)
	}

	f.mu.Lock()
	old := f.price
	f.price = price.Clone()
	f.mu.Unlock()

	if !old.Eq(price) {
		f.notifier.Emit(notify.PriceChange(f.name, old, price, f.clock()))
	}
	return nil
}

// FetchPrice returns the configured price
func (f *Fixed) FetchPrice() (*uint256.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.price.Clone(), nil
}
