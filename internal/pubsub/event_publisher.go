package pubsub

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/price-oracle/internal/config"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/internal/storage"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_events_published_total",
			Help: "Total number of oracle events published to streams",
		},
		[]string{"stream", "partition"},
	)

	publishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_events_publish_errors_total",
			Help: "Total number of oracle event publish errors",
		},
		[]string{"stream", "partition"},
	)

	publishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_events_publish_latency_seconds",
			Help:    "Publish latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"stream", "partition"},
	)

	batchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_events_batch_size",
			Help:    "Batch size for event publishing",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"stream"},
	)

	alertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_broken_alerts_total",
			Help: "Total number of broken-oracle alerts published",
		},
	)
)

// EventPublisherConfig holds configuration for the event publisher
type EventPublisherConfig struct {
	StreamName    string
	AlertChannel  string // OracleBroken events are also published here; empty disables
	BatchSize     int
	BatchTimeout  time.Duration
	Partitions    int // Number of partitions (0 = no partitioning)
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultEventPublisherConfig returns default configuration
func DefaultEventPublisherConfig(streamName string) EventPublisherConfig {
	return EventPublisherConfig{
		StreamName:    streamName,
		BatchSize:     100,
		BatchTimeout:  500 * time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// EventPublisherConfigFrom builds a publisher configuration from service config
func EventPublisherConfigFrom(cfg config.PublisherConfig) EventPublisherConfig {
	return EventPublisherConfig{
		StreamName:    cfg.StreamName,
		AlertChannel:  cfg.AlertChannel,
		BatchSize:     cfg.BatchSize,
		BatchTimeout:  cfg.BatchTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}
}

// EventPublisher batches oracle notifications and forwards them to a Redis
// stream and, when configured, to the event log. Either sink may be nil.
type EventPublisher struct {
	config EventPublisherConfig
	redis  storage.RedisClient
	store  storage.EventStore

	batch   []notify.EventRecord
	batchMu sync.Mutex
	flushCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(redis storage.RedisClient, store storage.EventStore, config EventPublisherConfig) *EventPublisher {
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	if config.RetryAttempts < 1 {
		config.RetryAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &EventPublisher{
		config:  config,
		redis:   redis,
		store:   store,
		batch:   make([]notify.EventRecord, 0, config.BatchSize),
		flushCh: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the batch publishing loop
func (p *EventPublisher) Start() {
	p.wg.Add(1)
	go p.batchLoop()
}

// Listener returns a notify.Listener feeding this publisher
func (p *EventPublisher) Listener() notify.Listener {
	return p.Publish
}

// Publish adds an event to the batch. It never blocks on I/O; a full batch
// wakes the publishing loop.
func (p *EventPublisher) Publish(e notify.Event) {
	p.batchMu.Lock()
	p.batch = append(p.batch, e.Record())
	full := len(p.batch) >= p.config.BatchSize
	p.batchMu.Unlock()

	if full {
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
}

func (p *EventPublisher) batchLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.flush(p.ctx)
		case <-p.flushCh:
			p.flush(p.ctx)
		}
	}
}

// flush publishes the current batch
func (p *EventPublisher) flush(ctx context.Context) error {
	p.batchMu.Lock()
	if len(p.batch) == 0 {
		p.batchMu.Unlock()
		return nil
	}
	batch := make([]notify.EventRecord, len(p.batch))
	copy(batch, p.batch)
	p.batch = p.batch[:0]
	p.batchMu.Unlock()

	batchSize.WithLabelValues(p.config.StreamName).Observe(float64(len(batch)))

	var lastErr error
	if p.store != nil {
		if err := p.store.WriteEvents(ctx, batch); err != nil {
			logger.Error("Failed to store events",
				logger.ErrorField(err),
				logger.Int("count", len(batch)),
			)
			lastErr = err
		}
	}
	if p.redis == nil {
		return lastErr
	}

	if err := p.publishAlerts(ctx, batch); err != nil {
		lastErr = err
	}

	if p.config.Partitions > 0 {
		if err := p.publishPartitioned(ctx, batch); err != nil {
			lastErr = err
		}
		return lastErr
	}
	if err := p.publishBatch(ctx, batch, p.config.StreamName, ""); err != nil {
		lastErr = err
	}
	return lastErr
}

func (p *EventPublisher) publishAlerts(ctx context.Context, events []notify.EventRecord) error {
	if p.config.AlertChannel == "" {
		return nil
	}
	var lastErr error
	for _, e := range events {
		if e.Kind != notify.KindOracleBroken {
			continue
		}
		if err := p.redis.Publish(ctx, p.config.AlertChannel, e); err != nil {
			logger.Error("Failed to publish oracle alert",
				logger.ErrorField(err),
				logger.String("oracle", e.Oracle),
			)
			lastErr = err
			continue
		}
		alertsTotal.Inc()
	}
	return lastErr
}

// publishPartitioned spreads events across streams by oracle name so one
// oracle's events always land on the same stream in order
func (p *EventPublisher) publishPartitioned(ctx context.Context, events []notify.EventRecord) error {
	partitions := make(map[int][]notify.EventRecord)
	for _, e := range events {
		partition := p.getPartition(e.Oracle)
		partitions[partition] = append(partitions[partition], e)
	}

	var lastErr error
	for partition, partitionEvents := range partitions {
		err := p.publishBatch(ctx, partitionEvents, p.GetPartitionStreamName(partition), fmt.Sprintf("%d", partition))
		if err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (p *EventPublisher) publishBatch(ctx context.Context, events []notify.EventRecord, streamName string, partition string) error {
	startTime := time.Now()

	messages := make([]map[string]interface{}, 0, len(events))
	for _, e := range events {
		eventJSON, err := json.Marshal(e)
		if err != nil {
			logger.Error("Failed to marshal event",
				logger.ErrorField(err),
				logger.String("oracle", e.Oracle),
			)
			continue
		}
		messages = append(messages, map[string]interface{}{
			"oracle": e.Oracle,
			"kind":   string(e.Kind),
			"event":  string(eventJSON),
		})
	}
	if len(messages) == 0 {
		return nil
	}

	var err error
	for attempt := 0; attempt < p.config.RetryAttempts; attempt++ {
		err = p.redis.PublishBatchToStream(ctx, streamName, messages)
		if err == nil {
			break
		}
		if attempt < p.config.RetryAttempts-1 {
			logger.Warn("Failed to publish batch, retrying",
				logger.ErrorField(err),
				logger.String("stream", streamName),
				logger.Int("attempt", attempt+1),
				logger.Int("count", len(messages)),
			)
			time.Sleep(p.config.RetryDelay * time.Duration(attempt+1))
		}
	}

	if err != nil {
		publishErrors.WithLabelValues(streamName, partition).Add(float64(len(messages)))
		logger.Error("Failed to publish batch after retries",
			logger.ErrorField(err),
			logger.String("stream", streamName),
			logger.Int("count", len(messages)),
		)
		return err
	}

	publishTotal.WithLabelValues(streamName, partition).Add(float64(len(messages)))
	publishLatency.WithLabelValues(streamName, partition).Observe(time.Since(startTime).Seconds())

	logger.Debug("Published event batch",
		logger.String("stream", streamName),
		logger.Int("count", len(messages)),
	)
	return nil
}

func (p *EventPublisher) getPartition(oracle string) int {
	if p.config.Partitions == 0 {
		return 0
	}
	hash := sha256.Sum256([]byte(oracle))
	hashInt := uint32(hash[0])<<24 | uint32(hash[1])<<16 | uint32(hash[2])<<8 | uint32(hash[3])
	return int(hashInt % uint32(p.config.Partitions))
}

// GetPartitionStreamName returns the stream name for a given partition
func (p *EventPublisher) GetPartitionStreamName(partition int) string {
	if p.config.Partitions == 0 {
		return p.config.StreamName
	}
	return fmt.Sprintf("%s.p%d", p.config.StreamName, partition)
}

// Flush forces an immediate flush of the current batch
func (p *EventPublisher) Flush() error {
	return p.flush(p.ctx)
}

// Close stops the publisher and flushes remaining events
func (p *EventPublisher) Close() error {
	p.cancel()
	p.wg.Wait()
	return p.flush(context.Background())
}

// GetBatchSize returns the number of events waiting to be published
func (p *EventPublisher) GetBatchSize() int {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	return len(p.batch)
}
