package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mohamedkhairy/price-oracle/internal/notify"
)

// ErrNotFound is returned when a requested key or record does not exist
var ErrNotFound = errors.New("not found")

// EventStore defines the interface for the oracle event log
type EventStore interface {
	// WriteEvents records notifications
	WriteEvents(ctx context.Context, events []notify.EventRecord) error

	// GetEvents retrieves notifications, newest first
	GetEvents(ctx context.Context, filter EventFilter) ([]notify.EventRecord, error)

	// Close closes the storage connection
	Close() error
}

// EventFilter defines filtering options for event queries
type EventFilter struct {
	Oracle    string
	Kind      notify.Kind
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// RedisClient defines the Redis operations the service uses
type RedisClient interface {
	// Stream operations
	PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error

	// Key-value operations
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error

	// Ping checks connectivity
	Ping(ctx context.Context) error

	// Close closes the Redis connection
	Close() error
}

// StreamMessage represents a message written to a Redis stream
type StreamMessage struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// PubSubMessage represents a message from Redis pub/sub
type PubSubMessage struct {
	Channel string
	Message string
}
