package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mohamedkhairy/price-oracle/internal/config"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_store_write_total",
			Help: "Total number of events written to the event log",
		},
		[]string{"status"}, // "success" or "error"
	)

	eventWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_store_write_errors_total",
			Help: "Total number of event log write errors",
		},
		[]string{"error_type"},
	)

	eventWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "event_store_write_latency_seconds",
			Help:    "Event log write latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
	)

	eventWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_store_write_queue_depth",
			Help: "Current depth of the event log write queue",
		},
	)
)

// Schema creates the event log table
const Schema = `
CREATE TABLE IF NOT EXISTS oracle_events (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	oracle     TEXT NOT NULL,
	old_value  NUMERIC(78, 0),
	new_value  NUMERIC(78, 0),
	timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS oracle_events_oracle_ts ON oracle_events (oracle, timestamp DESC);
`

// WriteConfig holds configuration for write operations
type WriteConfig struct {
	BatchSize  int
	Interval   time.Duration
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// WriteConfigFromEventStoreConfig creates a WriteConfig from EventStoreConfig
func WriteConfigFromEventStoreConfig(cfg config.EventStoreConfig) WriteConfig {
	return WriteConfig{
		BatchSize:  cfg.WriteBatchSize,
		Interval:   cfg.WriteInterval,
		QueueSize:  cfg.WriteQueueSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}
}

// PostgresEventStore implements EventStore on PostgreSQL. Writes are queued
// and flushed in batches by a background processor.
type PostgresEventStore struct {
	db          *sql.DB
	writeConfig WriteConfig

	writeQueue chan []notify.EventRecord
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

// ConnString builds a lib/pq connection string
func ConnString(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

// NewPostgresEventStore connects to PostgreSQL and ensures the schema exists
func NewPostgresEventStore(dbConfig config.DatabaseConfig, writeConfig WriteConfig) (*PostgresEventStore, error) {
	db, err := sql.Open("postgres", ConnString(dbConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	storeCtx, storeCancel := context.WithCancel(context.Background())
	store := &PostgresEventStore{
		db:          db,
		writeConfig: writeConfig,
		writeQueue:  make(chan []notify.EventRecord, writeConfig.QueueSize),
		ctx:         storeCtx,
		cancel:      storeCancel,
	}

	logger.Info("Connected to PostgreSQL event log",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return store, nil
}

// Start starts the write queue processor
func (s *PostgresEventStore) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("event store is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.processWriteQueue()
	return nil
}

// Stop stops the write queue processor, flushing queued events
func (s *PostgresEventStore) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	close(s.writeQueue)
	var remaining []notify.EventRecord
	for events := range s.writeQueue {
		remaining = append(remaining, events...)
	}
	s.writeSync(context.Background(), remaining)

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	logger.Info("Event store stopped")
	return nil
}

// Close stops the store
func (s *PostgresEventStore) Close() error {
	return s.Stop()
}

// IsRunning returns whether the write processor is running
func (s *PostgresEventStore) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// WriteEvents enqueues events for asynchronous writing
func (s *PostgresEventStore) WriteEvents(ctx context.Context, events []notify.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return fmt.Errorf("event store is not running")
	}

	select {
	case s.writeQueue <- events:
		eventWriteQueueDepth.Set(float64(len(s.writeQueue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		eventWriteErrors.WithLabelValues("queue_full").Inc()
		return fmt.Errorf("event write queue is full")
	}
}

// GetEvents retrieves events matching the filter, newest first
func (s *PostgresEventStore) GetEvents(ctx context.Context, filter EventFilter) ([]notify.EventRecord, error) {
	query, args := buildEventQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []notify.EventRecord
	for rows.Next() {
		var e notify.EventRecord
		var oldValue, newValue sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.Oracle, &oldValue, &newValue, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Old = oldValue.String
		e.New = newValue.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

func buildEventQuery(filter EventFilter) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT id, kind, oracle, old_value::text, new_value::text, timestamp FROM oracle_events WHERE 1=1")
	args := []interface{}{}

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		fmt.Fprintf(&b, clause, len(args))
	}

	if filter.Oracle != "" {
		add(" AND oracle = $%d", filter.Oracle)
	}
	if filter.Kind != "" {
		add(" AND kind = $%d", string(filter.Kind))
	}
	if !filter.StartTime.IsZero() {
		add(" AND timestamp >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add(" AND timestamp <= $%d", filter.EndTime)
	}

	b.WriteString(" ORDER BY timestamp DESC")

	if filter.Limit > 0 {
		add(" LIMIT $%d", filter.Limit)
	}
	if filter.Offset > 0 {
		add(" OFFSET $%d", filter.Offset)
	}
	return b.String(), args
}

func (s *PostgresEventStore) processWriteQueue() {
	defer s.wg.Done()

	batch := make([]notify.EventRecord, 0, s.writeConfig.BatchSize)
	ticker := time.NewTicker(s.writeConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.writeSync(context.Background(), batch)
			return

		case events := <-s.writeQueue:
			batch = append(batch, events...)
			eventWriteQueueDepth.Set(float64(len(s.writeQueue)))
			if len(batch) >= s.writeConfig.BatchSize {
				s.writeSync(context.Background(), batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.writeSync(context.Background(), batch)
				batch = batch[:0]
			}
		}
	}
}

// writeSync writes events with retry and exponential backoff
func (s *PostgresEventStore) writeSync(ctx context.Context, events []notify.EventRecord) {
	if len(events) == 0 {
		return
	}
	start := time.Now()

	var err error
	for attempt := 0; attempt < s.writeConfig.MaxRetries; attempt++ {
		err = s.insertEvents(ctx, events)
		if err == nil {
			break
		}
		if attempt < s.writeConfig.MaxRetries-1 {
			delay := s.writeConfig.RetryDelay * time.Duration(1<<uint(attempt))
			logger.Warn("Failed to write events, retrying",
				logger.ErrorField(err),
				logger.Int("attempt", attempt+1),
				logger.Int("count", len(events)),
				logger.Duration("delay", delay),
			)
			time.Sleep(delay)
		}
	}

	eventWriteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		eventWriteErrors.WithLabelValues("write_failed").Inc()
		eventWriteTotal.WithLabelValues("error").Add(float64(len(events)))
		logger.Error("Failed to write events after retries",
			logger.ErrorField(err),
			logger.Int("count", len(events)),
		)
		return
	}
	eventWriteTotal.WithLabelValues("success").Add(float64(len(events)))
}

func (s *PostgresEventStore) insertEvents(ctx context.Context, events []notify.EventRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO oracle_events (id, kind, oracle, old_value, new_value, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.ID, string(e.Kind), e.Oracle, nullable(e.Old), nullable(e.New), e.Timestamp); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
