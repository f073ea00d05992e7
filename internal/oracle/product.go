package oracle

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
)

// Product multiplies two oracles' prices, e.g. an ETH/USD feed and a
// USD/GMU rate give ETH/GMU. Both sources must share the product's precision.
type Product struct {
	base

	a, b Oracle
	unit *uint256.Int
}

// NewProduct creates a product of a and b in the given precision
func NewProduct(name string, a, b Oracle, decimals uint8, opts ...Option) (*Product, error) {
	p := &Product{}
	if err := p.init(name, append(opts, WithDecimals(decimals))); err != nil {
		return nil, err
	}
	if decimals > fixedpoint.MaxDecimals {
		return nil, p.wrap(fmt.Errorf("%w: %d decimals exceeds %d", ErrInvalidConfig, decimals, fixedpoint.MaxDecimals))
	}
	if a == nil || b == nil {
		return nil, p.wrap(fmt.Errorf("%w: both sources are required", ErrInvalidConfig))
	}
	p.a, p.b = a, b
	p.unit = fixedpoint.Pow10(decimals)
	return p, nil
}

// FetchPrice returns a*b scaled back to the product's precision. It fails
// when either source fails.
func (p *Product) FetchPrice() (*uint256.Int, error) {
	pa, err := p.a.FetchPrice()
	if err != nil {
		return nil, p.wrap(err)
	}
	pb, err := p.b.FetchPrice()
	if err != nil {
		return nil, p.wrap(err)
	}
	price, err := fixedpoint.MulDiv(pa, pb, p.unit)
	if err != nil {
		return nil, p.wrap(err)
	}
	return price, nil
}

// Sources returns the names of the two inputs
func (p *Product) Sources() (string, string) {
	return p.a.Name(), p.b.Name()
}
