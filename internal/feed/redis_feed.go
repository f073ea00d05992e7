package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/storage"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
)

// PriceRecord is the JSON document a RedisFeed reads. Price is the raw
// fixed-point integer in base 10.
type PriceRecord struct {
	Price     string    `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisFeed reads a price published by an external process under a Redis key
type RedisFeed struct {
	redis  storage.RedisClient
	key    string
	maxAge time.Duration
	now    func() time.Time
}

// NewRedisFeed creates a feed reading key. A zero maxAge disables the
// staleness check.
func NewRedisFeed(redis storage.RedisClient, key string, maxAge time.Duration) *RedisFeed {
	return &RedisFeed{redis: redis, key: key, maxAge: maxAge, now: time.Now}
}

func (f *RedisFeed) read(ctx context.Context) (*PriceRecord, error) {
	var record PriceRecord
	if err := f.redis.GetJSON(ctx, f.key, &record); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: key %s", ErrNoValue, f.key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.key, err)
	}
	return &record, nil
}

// CurrentPrice returns the stored price
func (f *RedisFeed) CurrentPrice(ctx context.Context) (*uint256.Int, error) {
	record, err := f.read(ctx)
	if err != nil {
		return nil, err
	}
	price, err := fixedpoint.Parse(record.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid price at %s: %w", f.key, err)
	}
	return price, nil
}

// IsValid reports false once the record is older than maxAge
func (f *RedisFeed) IsValid(ctx context.Context) (bool, error) {
	if f.maxAge == 0 {
		return true, nil
	}
	record, err := f.read(ctx)
	if err != nil {
		return false, err
	}
	return f.now().Sub(record.UpdatedAt) <= f.maxAge, nil
}
