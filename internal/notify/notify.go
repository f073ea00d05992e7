package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Kind identifies a notification type
type Kind string

const (
	// KindPriceChange fires when an oracle's reported price moves
	KindPriceChange Kind = "PriceChange"
	// KindFeedPriceChange fires on every observed upstream feed value
	KindFeedPriceChange Kind = "FeedPriceChange"
	// KindEpochTriggered fires when a due epoch is committed
	KindEpochTriggered Kind = "EpochTriggered"
	// KindLastGoodPriceUpdated fires when a ratchet's last good price is raised
	KindLastGoodPriceUpdated Kind = "LastGoodPriceUpdated"
	// KindOracleBroken fires once when the deviation guard trips
	KindOracleBroken Kind = "OracleBroken"
)

// Event is an outbound state-change notification.
// Old is nil for kinds that only carry a new value.
type Event struct {
	ID        string
	Kind      Kind
	Oracle    string
	Old       *uint256.Int
	New       *uint256.Int
	Timestamp time.Time
}

// Listener receives events synchronously. A listener must not call back into
// the update entry point of the oracle that emitted the event.
type Listener func(Event)

// Notifier fans events out to subscribed listeners in subscription order
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewNotifier creates an empty notifier
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a listener
func (n *Notifier) Subscribe(l Listener) {
	if l == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Emit assigns an ID to each event and delivers it to every listener
func (n *Notifier) Emit(events ...Event) {
	if n == nil || len(events) == 0 {
		return
	}

	n.mu.RLock()
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		for _, l := range listeners {
			l(e)
		}
	}
}

// ListenerCount returns the number of subscribed listeners
func (n *Notifier) ListenerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// PriceChange builds a PriceChange event
func PriceChange(oracle string, old, new *uint256.Int, at time.Time) Event {
	return Event{Kind: KindPriceChange, Oracle: oracle, Old: clone(old), New: clone(new), Timestamp: at}
}

// FeedPriceChange builds a FeedPriceChange event
func FeedPriceChange(oracle string, old, new *uint256.Int, at time.Time) Event {
	return Event{Kind: KindFeedPriceChange, Oracle: oracle, Old: clone(old), New: clone(new), Timestamp: at}
}

// EpochTriggered builds an EpochTriggered event
func EpochTriggered(oracle string, at time.Time) Event {
	return Event{Kind: KindEpochTriggered, Oracle: oracle, Timestamp: at}
}

// LastGoodPriceUpdated builds a LastGoodPriceUpdated event
func LastGoodPriceUpdated(oracle string, new *uint256.Int, at time.Time) Event {
	return Event{Kind: KindLastGoodPriceUpdated, Oracle: oracle, New: clone(new), Timestamp: at}
}

// OracleBroken builds an OracleBroken event carrying the reference and rejected values
func OracleBroken(oracle string, reference, rejected *uint256.Int, at time.Time) Event {
	return Event{Kind: KindOracleBroken, Oracle: oracle, Old: clone(reference), New: clone(rejected), Timestamp: at}
}

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}

// EventRecord is the wire form of an Event with prices as base-10 strings
type EventRecord struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Oracle    string    `json:"oracle"`
	Old       string    `json:"old,omitempty"`
	New       string    `json:"new,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Record converts the event into its wire form
func (e Event) Record() EventRecord {
	r := EventRecord{ID: e.ID, Kind: e.Kind, Oracle: e.Oracle, Timestamp: e.Timestamp}
	if e.Old != nil {
		r.Old = e.Old.Dec()
	}
	if e.New != nil {
		r.New = e.New.Dec()
	}
	return r
}
