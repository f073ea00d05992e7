package oracle

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/models"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
)

// RingHistory is a fixed-capacity, time-ordered window of samples. Pushing
// into a full window evicts the oldest sample.
type RingHistory struct {
	samples []models.PriceSample
	next    int
	size    int
}

// NewRingHistory creates an empty window holding up to capacity samples
func NewRingHistory(capacity int) (*RingHistory, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: history capacity must be positive, got %d", ErrInvalidConfig, capacity)
	}
	return &RingHistory{samples: make([]models.PriceSample, capacity)}, nil
}

// Push appends a sample. Timestamps must be strictly increasing.
func (h *RingHistory) Push(s models.PriceSample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if latest, ok := h.Latest(); ok && !s.Timestamp.After(latest.Timestamp) {
		return fmt.Errorf("%w: %s <= %s", ErrOutOfOrderSample, s.Timestamp, latest.Timestamp)
	}
	h.samples[h.next] = s.Clone()
	h.next = (h.next + 1) % len(h.samples)
	if h.size < len(h.samples) {
		h.size++
	}
	return nil
}

// Len returns the number of samples held
func (h *RingHistory) Len() int {
	return h.size
}

// Cap returns the window capacity
func (h *RingHistory) Cap() int {
	return len(h.samples)
}

// Full reports whether the window is at capacity
func (h *RingHistory) Full() bool {
	return h.size == len(h.samples)
}

// Samples returns copies of the held samples, oldest first
func (h *RingHistory) Samples() []models.PriceSample {
	out := make([]models.PriceSample, 0, h.size)
	start := (h.next - h.size + len(h.samples)) % len(h.samples)
	for i := 0; i < h.size; i++ {
		out = append(out, h.samples[(start+i)%len(h.samples)].Clone())
	}
	return out
}

// Latest returns the newest sample
func (h *RingHistory) Latest() (models.PriceSample, bool) {
	if h.size == 0 {
		return models.PriceSample{}, false
	}
	idx := (h.next - 1 + len(h.samples)) % len(h.samples)
	return h.samples[idx].Clone(), true
}

// Clone returns an independent copy of the window
func (h *RingHistory) Clone() *RingHistory {
	c := &RingHistory{samples: make([]models.PriceSample, len(h.samples)), next: h.next, size: h.size}
	for i, s := range h.samples {
		if s.Value != nil {
			c.samples[i] = s.Clone()
		}
	}
	return c
}

// seedHistory builds a window from seed values stamped one period apart,
// the newest at end
func seedHistory(capacity int, seed []*uint256.Int, period time.Duration, end time.Time) (*RingHistory, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("%w: at least one seed value is required", ErrInvalidConfig)
	}
	if len(seed) > capacity {
		return nil, fmt.Errorf("%w: %d seed values exceed window of %d", ErrInvalidConfig, len(seed), capacity)
	}
	h, err := NewRingHistory(capacity)
	if err != nil {
		return nil, err
	}
	for i, v := range seed {
		if err := requirePositive(fmt.Sprintf("seed[%d]", i), v); err != nil {
			return nil, err
		}
		ts := end.Add(-time.Duration(len(seed)-1-i) * period)
		if err := h.Push(models.NewPriceSample(v, ts)); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// timeWeightedAverage weights each sample by the time until the next one;
// the newest sample is weighted by one full period
func timeWeightedAverage(samples []models.PriceSample, period time.Duration) (*uint256.Int, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyHistory
	}
	sum := new(uint256.Int)
	total := new(uint256.Int)
	for i, s := range samples {
		span := period
		if i+1 < len(samples) {
			span = samples[i+1].Timestamp.Sub(s.Timestamp)
		}
		weight := uint256.NewInt(uint64(span / time.Second))
		term, err := fixedpoint.Mul(s.Value, weight)
		if err != nil {
			return nil, err
		}
		if sum, err = fixedpoint.Add(sum, term); err != nil {
			return nil, err
		}
		total.Add(total, weight)
	}
	if total.IsZero() {
		return nil, fmt.Errorf("%w: samples span no time", ErrInvalidConfig)
	}
	return fixedpoint.Div(sum, total)
}
