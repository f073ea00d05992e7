package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/config"
	"github.com/mohamedkhairy/price-oracle/internal/feed"
	"github.com/mohamedkhairy/price-oracle/internal/keeper"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/internal/oracle"
	"github.com/mohamedkhairy/price-oracle/internal/storage"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
	"go.uber.org/zap"
)

// Dependencies are the shared services oracles are built against
type Dependencies struct {
	// Notifier receives every oracle's events
	Notifier *notify.Notifier
	// Redis backs redis feeds; nil when redis is disabled
	Redis storage.RedisClient
	// Clock defaults to time.Now
	Clock func() time.Time
	// Logger defaults to the global logger
	Logger *zap.Logger
}

// Built is the result of building an oracle definitions file
type Built struct {
	Registry *Registry
	Jobs     []keeper.Job
}

type builder struct {
	ctx  context.Context
	deps Dependencies
	reg  *Registry
	jobs []keeper.Job
	log  *zap.Logger
}

// Build constructs every oracle in file, in order, and the keeper jobs that
// feed them. Oracles that read other oracles or redis are read once here to
// take their starting values.
func Build(ctx context.Context, file *config.OraclesFile, deps Dependencies) (*Built, error) {
	if err := file.Validate(); err != nil {
		return nil, err
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewNotifier()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.Get()
	}

	b := &builder{
		ctx:  ctx,
		deps: deps,
		reg:  NewRegistry(),
		log:  deps.Logger.Named("registry"),
	}
	b.reg.clock = deps.Clock

	for _, def := range file.Oracles {
		if err := b.build(def); err != nil {
			return nil, fmt.Errorf("oracle %q: %w", def.Name, err)
		}
	}

	b.log.Info("Oracles built",
		zap.Int("oracles", b.reg.Len()),
		zap.Int("jobs", len(b.jobs)),
	)
	return &Built{Registry: b.reg, Jobs: b.jobs}, nil
}

func (b *builder) options(decimals uint8) []oracle.Option {
	return []oracle.Option{
		oracle.WithNotifier(b.deps.Notifier),
		oracle.WithClock(b.deps.Clock),
		oracle.WithLogger(b.deps.Logger.Named("oracle")),
		oracle.WithDecimals(decimals),
	}
}

func (b *builder) build(def config.OracleDef) error {
	decimals := def.PrecisionOrDefault()
	opts := b.options(decimals)
	now := b.deps.Clock()

	var (
		o   oracle.Oracle
		job keeper.Job
		err error
	)

	switch def.Type {
	case config.OracleTypeTWAP:
		o, job, err = b.buildTWAP(def, decimals, now, opts)
	case config.OracleTypeMovingAverage:
		o, job, err = b.buildMovingAverage(def, decimals, now, opts)
	case config.OracleTypeDailyRatchet:
		o, job, err = b.buildDailyRatchet(def, decimals, now, opts)
	case config.OracleTypeRatchet:
		o, job, err = b.buildRatchet(def, decimals, opts)
	case config.OracleTypeLinear:
		o, job, err = b.buildLinear(def, decimals, now, opts)
	case config.OracleTypeFixed:
		o, job, err = b.buildFixed(def, decimals, opts)
	case config.OracleTypeProduct:
		o, err = b.buildProduct(def, decimals, opts)
	default:
		err = fmt.Errorf("unknown type %q", def.Type)
	}
	if err != nil {
		return err
	}

	if err := b.reg.Register(Entry{Name: def.Name, Type: def.Type, Decimals: decimals, Oracle: o}); err != nil {
		return err
	}
	if job != nil {
		b.jobs = append(b.jobs, job)
	}
	return nil
}

func (b *builder) buildTWAP(def config.OracleDef, decimals uint8, now time.Time, opts []oracle.Option) (oracle.Oracle, keeper.Job, error) {
	maxChange, err := def.MaxChangeValue()
	if err != nil {
		return nil, nil, fmt.Errorf("max_change: %w", err)
	}
	seed, err := def.SeedValues()
	if err != nil {
		return nil, nil, fmt.Errorf("seed: %w", err)
	}
	f, err := b.feed(def.Feed, decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("feed: %w", err)
	}

	t, err := oracle.NewTWAP(oracle.TWAPConfig{
		Name:      def.Name,
		Period:    def.Period,
		Window:    def.Window,
		MaxChange: maxChange,
	}, seed, now, opts...)
	if err != nil {
		return nil, nil, err
	}
	return t, keeper.NewPeriodicJob(def.Name, t, f), nil
}

func (b *builder) buildMovingAverage(def config.OracleDef, decimals uint8, now time.Time, opts []oracle.Option) (oracle.Oracle, keeper.Job, error) {
	maxChange, err := def.MaxChangeValue()
	if err != nil {
		return nil, nil, fmt.Errorf("max_change: %w", err)
	}
	maxSpread, err := def.MaxSpreadValue()
	if err != nil {
		return nil, nil, fmt.Errorf("max_spread: %w", err)
	}
	seed, err := def.SeedValues()
	if err != nil {
		return nil, nil, fmt.Errorf("seed: %w", err)
	}
	shortSeed, err := def.ShortSeedValues()
	if err != nil {
		return nil, nil, fmt.Errorf("short_seed: %w", err)
	}
	short, long, err := b.feedPair(def, decimals)
	if err != nil {
		return nil, nil, err
	}

	m, err := oracle.NewMovingAverage(oracle.MovingAverageConfig{
		Name:        def.Name,
		Period:      def.Period,
		ShortWindow: def.ShortWindow,
		LongWindow:  def.LongWindow,
		MaxChange:   maxChange,
		MaxSpread:   maxSpread,
	}, shortSeed, seed, now, opts...)
	if err != nil {
		return nil, nil, err
	}
	return m, keeper.NewPairJob(def.Name, m, short, long), nil
}

func (b *builder) buildDailyRatchet(def config.OracleDef, decimals uint8, now time.Time, opts []oracle.Option) (oracle.Oracle, keeper.Job, error) {
	maxChange, err := def.MaxChangeValue()
	if err != nil {
		return nil, nil, fmt.Errorf("max_change: %w", err)
	}
	price, err := def.PriceValue()
	if err != nil {
		return nil, nil, fmt.Errorf("price: %w", err)
	}
	short, long, err := b.feedPair(def, decimals)
	if err != nil {
		return nil, nil, err
	}
	shortStart, err := feed.Read(b.ctx, short)
	if err != nil {
		return nil, nil, fmt.Errorf("short_feed: initial read: %w", err)
	}
	longStart, err := feed.Read(b.ctx, long)
	if err != nil {
		return nil, nil, fmt.Errorf("long_feed: initial read: %w", err)
	}

	d, err := oracle.NewDailyRatchet(oracle.DailyRatchetConfig{
		Name:      def.Name,
		Period:    def.Period,
		MaxChange: maxChange,
	}, price, shortStart, longStart, now, opts...)
	if err != nil {
		return nil, nil, err
	}
	return d, keeper.NewPairJob(def.Name, d, short, long), nil
}

func (b *builder) buildRatchet(def config.OracleDef, decimals uint8, opts []oracle.Option) (oracle.Oracle, keeper.Job, error) {
	price, err := def.PriceValue()
	if err != nil {
		return nil, nil, fmt.Errorf("price: %w", err)
	}
	f, err := b.feed(def.Feed, decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("feed: %w", err)
	}
	initial, err := def.FeedPriceValue()
	if err != nil {
		return nil, nil, fmt.Errorf("feed_price: %w", err)
	}
	if initial == nil {
		if initial, err = feed.Read(b.ctx, f); err != nil {
			return nil, nil, fmt.Errorf("feed: initial read: %w", err)
		}
	}

	r, err := oracle.NewRatchet(def.Name, price, initial, opts...)
	if err != nil {
		return nil, nil, err
	}
	return r, keeper.NewFeedJob(def.Name, r, f), nil
}

func (b *builder) buildLinear(def config.OracleDef, decimals uint8, now time.Time, opts []oracle.Option) (oracle.Oracle, keeper.Job, error) {
	price, err := def.PriceValue()
	if err != nil {
		return nil, nil, fmt.Errorf("price: %w", err)
	}
	l, err := oracle.NewLinear(def.Name, price, now, opts...)
	if err != nil {
		return nil, nil, err
	}
	if def.Feed == nil {
		return l, nil, nil
	}
	f, err := b.feed(def.Feed, decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("feed: %w", err)
	}
	return l, keeper.NewTargetJob(def.Name, l, f, def.Duration), nil
}

func (b *builder) buildFixed(def config.OracleDef, decimals uint8, opts []oracle.Option) (oracle.Oracle, keeper.Job, error) {
	price, err := def.PriceValue()
	if err != nil {
		return nil, nil, fmt.Errorf("price: %w", err)
	}
	fx, err := oracle.NewFixed(def.Name, price, opts...)
	if err != nil {
		return nil, nil, err
	}
	if def.Feed == nil {
		return fx, nil, nil
	}
	f, err := b.feed(def.Feed, decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("feed: %w", err)
	}
	return fx, keeper.NewSetJob(def.Name, fx, f), nil
}

func (b *builder) buildProduct(def config.OracleDef, decimals uint8, opts []oracle.Option) (oracle.Oracle, error) {
	sources := make([]oracle.Oracle, 0, len(def.Sources))
	for _, name := range def.Sources {
		e, ok := b.reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("source %q is not registered", name)
		}
		if e.Decimals != decimals {
			return nil, fmt.Errorf("source %q has %d decimals, product has %d", name, e.Decimals, decimals)
		}
		sources = append(sources, e.Oracle)
	}
	p, err := oracle.NewProduct(def.Name, sources[0], sources[1], decimals, opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (b *builder) feedPair(def config.OracleDef, decimals uint8) (feed.Feed, feed.Feed, error) {
	short, err := b.feed(def.ShortFeed, decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("short_feed: %w", err)
	}
	long, err := b.feed(def.LongFeed, decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("long_feed: %w", err)
	}
	return short, long, nil
}

// feed builds the feed described by fs, rescaled to the oracle's precision
// when the source's precision differs
func (b *builder) feed(fs *config.FeedDef, decimals uint8) (feed.Feed, error) {
	if fs == nil {
		return nil, fmt.Errorf("feed is not defined")
	}

	var (
		f      feed.Feed
		source uint8
	)
	switch fs.Type {
	case config.FeedTypeStatic:
		source = fs.PrecisionOr(decimals)
		v, err := fixedpoint.ParseDecimal(fs.Value, source)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		f = feed.NewStaticFeed(v)
	case config.FeedTypeRedis:
		if b.deps.Redis == nil {
			return nil, fmt.Errorf("redis feed %q needs redis to be enabled", fs.Key)
		}
		source = fs.PrecisionOr(decimals)
		f = feed.NewRedisFeed(b.deps.Redis, fs.Key, fs.MaxAge)
	case config.FeedTypeOracle:
		e, ok := b.reg.Get(fs.Oracle)
		if !ok {
			return nil, fmt.Errorf("oracle %q is not registered", fs.Oracle)
		}
		source = fs.PrecisionOr(e.Decimals)
		var err error
		if f, err = oracleFeed(e, fs.Field); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown feed type %q", fs.Type)
	}

	if source == decimals {
		return f, nil
	}
	return feed.NewScaledFeed(f, source, decimals)
}

type averages interface {
	LastPrice7d() *uint256.Int
	LastPrice30d() *uint256.Int
}

// oracleFeed reads another oracle in-process
func oracleFeed(e Entry, field string) (feed.Feed, error) {
	switch field {
	case "", "price":
		return feed.FuncFeed(func(ctx context.Context) (*uint256.Int, error) {
			return e.Oracle.FetchPrice()
		}), nil
	case "price_7d", "price_30d":
		avg, ok := e.Oracle.(averages)
		if !ok {
			return nil, fmt.Errorf("oracle %q (%s) has no %s", e.Name, e.Type, field)
		}
		read := avg.LastPrice30d
		if field == "price_7d" {
			read = avg.LastPrice7d
		}
		return feed.FuncFeed(func(ctx context.Context) (*uint256.Int, error) {
			return read(), nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown oracle field %q", field)
	}
}
