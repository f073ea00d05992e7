package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohamedkhairy/price-oracle/internal/config"
	"github.com/mohamedkhairy/price-oracle/internal/models"
	"github.com/mohamedkhairy/price-oracle/internal/storage"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var statusWritesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "oracle_status_writes_total",
		Help: "Total number of oracle status snapshots written to Redis",
	},
	[]string{"status"},
)

// StatusWriter mirrors oracle snapshots into Redis keys so readers outside
// the process can fetch current prices
type StatusWriter struct {
	redis  storage.RedisClient
	prefix string
	ttl    time.Duration
}

// NewStatusWriter creates a writer storing each snapshot under prefix+name
func NewStatusWriter(redis storage.RedisClient, prefix string, ttl time.Duration) *StatusWriter {
	return &StatusWriter{redis: redis, prefix: prefix, ttl: ttl}
}

// StatusWriterFrom builds a writer from publisher config
func StatusWriterFrom(redis storage.RedisClient, cfg config.PublisherConfig) *StatusWriter {
	return NewStatusWriter(redis, cfg.PriceKeyPrefix, cfg.PriceTTL)
}

// Key returns the Redis key for an oracle
func (w *StatusWriter) Key(name string) string {
	return fmt.Sprintf("%s%s", w.prefix, name)
}

// Write stores every snapshot. It keeps going past failures and returns
// them joined.
func (w *StatusWriter) Write(ctx context.Context, statuses []models.OracleStatus) error {
	var errs []error
	for _, s := range statuses {
		key := w.Key(s.Name)
		if err := w.redis.Set(ctx, key, s, w.ttl); err != nil {
			statusWritesTotal.WithLabelValues("error").Inc()
			logger.Error("Failed to write oracle status",
				logger.ErrorField(err),
				logger.String("oracle", s.Name),
				logger.String("key", key),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		statusWritesTotal.WithLabelValues("success").Inc()
	}
	return errors.Join(errs...)
}
