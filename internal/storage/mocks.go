package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/price-oracle/internal/notify"
)

// MockEventStore is an in-memory EventStore for testing
type MockEventStore struct {
	mu       sync.Mutex
	Events   []notify.EventRecord
	WriteErr error
	GetErr   error
}

func (m *MockEventStore) WriteEvents(ctx context.Context, events []notify.EventRecord) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, events...)
	return nil
}

func (m *MockEventStore) GetEvents(ctx context.Context, filter EventFilter) ([]notify.EventRecord, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []notify.EventRecord
	for _, e := range m.Events {
		if filter.Oracle != "" && e.Oracle != filter.Oracle {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
			continue
		}
		result = append(result, e)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []notify.EventRecord{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockEventStore) Close() error {
	return nil
}

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu         sync.Mutex
	Data       map[string]string
	StreamData []StreamMessage
	PubSubData []PubSubMessage
	PublishErr error
	GetErr     error
	SetErr     error
	PingErr    error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Data: make(map[string]string),
	}
}

func (m *MockRedisClient) PublishBatchToStream(ctx context.Context, stream string, messages []map[string]interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		m.StreamData = append(m.StreamData, StreamMessage{
			Stream: stream,
			Values: msg,
		})
	}
	return nil
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = string(jsonData)
	return nil
}

func (m *MockRedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if m.GetErr != nil {
		return m.GetErr
	}
	m.mu.Lock()
	value, exists := m.Data[key]
	m.mu.Unlock()
	if !exists {
		return ErrNotFound
	}
	return json.Unmarshal([]byte(value), dest)
}

func (m *MockRedisClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
	return nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PubSubData = append(m.PubSubData, PubSubMessage{Channel: channel, Message: string(jsonData)})
	return nil
}

func (m *MockRedisClient) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockRedisClient) Close() error {
	return nil
}

// Streams returns a copy of the published stream messages
func (m *MockRedisClient) Streams() []StreamMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StreamMessage, len(m.StreamData))
	copy(out, m.StreamData)
	return out
}

// Messages returns a copy of the published pub/sub messages
func (m *MockRedisClient) Messages() []PubSubMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PubSubMessage, len(m.PubSubData))
	copy(out, m.PubSubData)
	return out
}
