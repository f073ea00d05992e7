// Package oracle implements the price engines: TWAP, dual moving average,
// ratchet, daily ratchet, linear interpolation, fixed and product oracles.
//
// Every engine is a synchronous state machine. Inputs (feed values and the
// current time) are passed in by the caller; nothing here performs I/O or
// starts goroutines. Reads never mutate state.
package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
	"go.uber.org/zap"
)

// Oracle is the consumer-facing read interface shared by all engines
type Oracle interface {
	Name() string
	FetchPrice() (*uint256.Int, error)
}

// Breakable is implemented by oracles guarded by a circuit breaker
type Breakable interface {
	Broken() bool
}

// Option customises an oracle at construction
type Option func(*base)

// WithNotifier routes the oracle's events to a shared notifier
func WithNotifier(n *notify.Notifier) Option {
	return func(b *base) {
		if n != nil {
			b.notifier = n
		}
	}
}

// WithLogger overrides the oracle's logger
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

// WithClock sets the clock used for event timestamps and, for the linear
// oracle, for FetchPrice
func WithClock(clock func() time.Time) Option {
	return func(b *base) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithDecimals records the precision the oracle's prices are expressed in
func WithDecimals(decimals uint8) Option {
	return func(b *base) {
		b.decimals = decimals
	}
}

// base carries what every engine shares: identity, the writer lock that
// serialises updates and their notifications, and the state lock readers take.
type base struct {
	name     string
	decimals uint8

	writeMu sync.Mutex
	mu      sync.RWMutex

	notifier *notify.Notifier
	log      *zap.Logger
	clock    func() time.Time
}

func (b *base) init(name string, opts []Option) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	b.name = name
	b.decimals = fixedpoint.Precision18
	b.clock = time.Now
	for _, opt := range opts {
		opt(b)
	}
	if b.notifier == nil {
		b.notifier = notify.NewNotifier()
	}
	if b.log == nil {
		b.log = logger.Named("oracle")
	}
	b.log = b.log.With(zap.String("oracle", name))
	return nil
}

// Name returns the oracle's name
func (b *base) Name() string {
	return b.name
}

// Decimals returns the precision of the oracle's prices
func (b *base) Decimals() uint8 {
	return b.decimals
}

// Subscribe registers a listener for the oracle's events
func (b *base) Subscribe(l notify.Listener) {
	b.notifier.Subscribe(l)
}

// wrap prefixes an error with the oracle name
func (b *base) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", b.name, err)
}

func requirePositive(field string, v *uint256.Int) error {
	if v == nil || v.IsZero() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidPrice, field)
	}
	return nil
}
