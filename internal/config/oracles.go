package config

import (
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
	"gopkg.in/yaml.v3"
)

// Oracle types accepted in the definitions file
const (
	OracleTypeTWAP          = "twap"
	OracleTypeMovingAverage = "moving_average"
	OracleTypeRatchet       = "ratchet"
	OracleTypeDailyRatchet  = "daily_ratchet"
	OracleTypeLinear        = "linear"
	OracleTypeFixed         = "fixed"
	OracleTypeProduct       = "product"
)

// Feed types accepted in the definitions file
const (
	FeedTypeStatic = "static"
	FeedTypeRedis  = "redis"
	FeedTypeOracle = "oracle"
)

// OraclesFile is the top-level oracle definitions document
type OraclesFile struct {
	Oracles []OracleDef `yaml:"oracles"`
}

// OracleDef defines one oracle. Prices are written as human-readable
// decimals ("2150.5") in the oracle's precision.
type OracleDef struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Decimals *uint8 `yaml:"decimals"`

	Period      time.Duration `yaml:"period"`
	Window      int           `yaml:"window"`
	ShortWindow int           `yaml:"short_window"`
	LongWindow  int           `yaml:"long_window"`
	MaxChange   string        `yaml:"max_change"`
	MaxSpread   string        `yaml:"max_spread"`

	Price     string   `yaml:"price"`
	Seed      []string `yaml:"seed"`
	ShortSeed []string `yaml:"short_seed"`

	// FeedPrice is a ratchet's reference feed value at start. When unset the
	// feed is read once while building.
	FeedPrice string `yaml:"feed_price"`

	// Duration is the interpolation window for linear oracles
	Duration time.Duration `yaml:"duration"`

	Feed      *FeedDef `yaml:"feed"`
	ShortFeed *FeedDef `yaml:"short_feed"`
	LongFeed  *FeedDef `yaml:"long_feed"`

	// Sources names the two oracles multiplied by a product oracle
	Sources []string `yaml:"sources"`
}

// FeedDef defines an upstream feed
type FeedDef struct {
	Type string `yaml:"type"`

	// static
	Value string `yaml:"value"`

	// redis
	Key    string        `yaml:"key"`
	MaxAge time.Duration `yaml:"max_age"`

	// oracle: read another oracle; Field selects price, price_7d or price_30d
	Oracle string `yaml:"oracle"`
	Field  string `yaml:"field"`

	// Decimals is the feed's native precision; values are rescaled to the
	// oracle's precision when it differs
	Decimals *uint8 `yaml:"decimals"`
}

// LoadOracles reads and validates the definitions file
func LoadOracles(path string) (*OraclesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle config: %w", err)
	}
	return ParseOracles(data)
}

// ParseOracles parses and validates a definitions document
func ParseOracles(data []byte) (*OraclesFile, error) {
	var file OraclesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse oracle config: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks every definition and cross-references between them
func (f *OraclesFile) Validate() error {
	if len(f.Oracles) == 0 {
		return fmt.Errorf("oracle config defines no oracles")
	}
	seen := make(map[string]bool, len(f.Oracles))
	for i, def := range f.Oracles {
		if def.Name == "" {
			return fmt.Errorf("oracle %d: name is required", i)
		}
		if seen[def.Name] {
			return fmt.Errorf("oracle %q defined twice", def.Name)
		}
		if err := def.Validate(); err != nil {
			return fmt.Errorf("oracle %q: %w", def.Name, err)
		}
		// References must point at oracles defined earlier
		for _, ref := range def.References() {
			if !seen[ref] {
				return fmt.Errorf("oracle %q: references %q, which is not defined before it", def.Name, ref)
			}
		}
		seen[def.Name] = true
	}
	return nil
}

// Validate checks the fields required by the oracle's type
func (s OracleDef) Validate() error {
	if s.Decimals != nil && *s.Decimals > fixedpoint.MaxDecimals {
		return fmt.Errorf("decimals %d exceeds %d", *s.Decimals, fixedpoint.MaxDecimals)
	}

	switch s.Type {
	case OracleTypeTWAP:
		if s.Window < 1 {
			return fmt.Errorf("window is required")
		}
		if err := s.requirePeriodic(); err != nil {
			return err
		}
		if len(s.Seed) == 0 {
			return fmt.Errorf("seed is required")
		}
		return s.requireFeed("feed", s.Feed)
	case OracleTypeMovingAverage:
		if err := s.requirePeriodic(); err != nil {
			return err
		}
		if len(s.Seed) == 0 {
			return fmt.Errorf("seed is required")
		}
		if err := s.requireFeed("short_feed", s.ShortFeed); err != nil {
			return err
		}
		return s.requireFeed("long_feed", s.LongFeed)
	case OracleTypeDailyRatchet:
		if err := s.requirePeriodic(); err != nil {
			return err
		}
		if s.Price == "" {
			return fmt.Errorf("price is required")
		}
		if err := s.requireFeed("short_feed", s.ShortFeed); err != nil {
			return err
		}
		return s.requireFeed("long_feed", s.LongFeed)
	case OracleTypeRatchet:
		if s.Price == "" {
			return fmt.Errorf("price is required")
		}
		return s.requireFeed("feed", s.Feed)
	case OracleTypeLinear:
		if s.Price == "" {
			return fmt.Errorf("price is required")
		}
		if s.Feed != nil {
			if s.Duration <= 0 {
				return fmt.Errorf("duration is required with a feed")
			}
			return s.requireFeed("feed", s.Feed)
		}
		return nil
	case OracleTypeFixed:
		if s.Price == "" {
			return fmt.Errorf("price is required")
		}
		if s.Feed != nil {
			return s.requireFeed("feed", s.Feed)
		}
		return nil
	case OracleTypeProduct:
		if len(s.Sources) != 2 {
			return fmt.Errorf("product needs exactly two sources, got %d", len(s.Sources))
		}
		return nil
	default:
		return fmt.Errorf("unknown type %q", s.Type)
	}
}

func (s OracleDef) requirePeriodic() error {
	if s.Period < time.Second {
		return fmt.Errorf("period must be at least 1s")
	}
	if s.MaxChange == "" {
		return fmt.Errorf("max_change is required")
	}
	return nil
}

func (s OracleDef) requireFeed(field string, f *FeedDef) error {
	if f == nil {
		return fmt.Errorf("%s is required", field)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// References returns the names of other oracles this one reads
func (s OracleDef) References() []string {
	var refs []string
	refs = append(refs, s.Sources...)
	for _, f := range []*FeedDef{s.Feed, s.ShortFeed, s.LongFeed} {
		if f != nil && f.Type == FeedTypeOracle {
			refs = append(refs, f.Oracle)
		}
	}
	return refs
}

// PrecisionOrDefault returns the oracle's decimals, 18 when unset
func (s OracleDef) PrecisionOrDefault() uint8 {
	if s.Decimals == nil {
		return fixedpoint.Precision18
	}
	return *s.Decimals
}

// MaxChangeValue parses MaxChange as a WAD fraction
func (s OracleDef) MaxChangeValue() (*uint256.Int, error) {
	return fixedpoint.ParseDecimal(s.MaxChange, fixedpoint.Precision18)
}

// MaxSpreadValue parses MaxSpread as a WAD fraction; nil when unset
func (s OracleDef) MaxSpreadValue() (*uint256.Int, error) {
	if s.MaxSpread == "" {
		return nil, nil
	}
	return fixedpoint.ParseDecimal(s.MaxSpread, fixedpoint.Precision18)
}

// PriceValue parses Price in the oracle's precision
func (s OracleDef) PriceValue() (*uint256.Int, error) {
	return fixedpoint.ParseDecimal(s.Price, s.PrecisionOrDefault())
}

// FeedPriceValue parses FeedPrice in the oracle's precision; nil when unset
func (s OracleDef) FeedPriceValue() (*uint256.Int, error) {
	if s.FeedPrice == "" {
		return nil, nil
	}
	return fixedpoint.ParseDecimal(s.FeedPrice, s.PrecisionOrDefault())
}

// SeedValues parses Seed in the oracle's precision
func (s OracleDef) SeedValues() ([]*uint256.Int, error) {
	return parseAll(s.Seed, s.PrecisionOrDefault())
}

// ShortSeedValues parses ShortSeed; nil when unset
func (s OracleDef) ShortSeedValues() ([]*uint256.Int, error) {
	if len(s.ShortSeed) == 0 {
		return nil, nil
	}
	return parseAll(s.ShortSeed, s.PrecisionOrDefault())
}

func parseAll(values []string, decimals uint8) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		parsed, err := fixedpoint.ParseDecimal(v, decimals)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = parsed
	}
	return out, nil
}

// Validate checks the fields required by the feed's type
func (f FeedDef) Validate() error {
	if f.Decimals != nil && *f.Decimals > fixedpoint.MaxDecimals {
		return fmt.Errorf("decimals %d exceeds %d", *f.Decimals, fixedpoint.MaxDecimals)
	}
	switch f.Type {
	case FeedTypeStatic:
		if f.Value == "" {
			return fmt.Errorf("static feed needs a value")
		}
	case FeedTypeRedis:
		if f.Key == "" {
			return fmt.Errorf("redis feed needs a key")
		}
	case FeedTypeOracle:
		if f.Oracle == "" {
			return fmt.Errorf("oracle feed needs an oracle name")
		}
		switch f.Field {
		case "", "price", "price_7d", "price_30d":
		default:
			return fmt.Errorf("unknown oracle field %q", f.Field)
		}
	default:
		return fmt.Errorf("unknown feed type %q", f.Type)
	}
	return nil
}

// PrecisionOr returns the feed's decimals, or fallback when unset
func (f FeedDef) PrecisionOr(fallback uint8) uint8 {
	if f.Decimals == nil {
		return fallback
	}
	return *f.Decimals
}
