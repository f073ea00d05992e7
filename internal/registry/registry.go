// Package registry holds the running oracles by name and builds them,
// together with their keeper jobs, from the oracle definitions file.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/price-oracle/internal/keeper"
	"github.com/mohamedkhairy/price-oracle/internal/models"
	"github.com/mohamedkhairy/price-oracle/internal/oracle"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
)

// Entry is a registered oracle with its metadata
type Entry struct {
	Name     string
	Type     string
	Decimals uint8
	Oracle   oracle.Oracle
}

// lastResult is the outcome of the most recent keeper job for an oracle
type lastResult struct {
	err error
	at  time.Time
}

// Registry manages the running oracles
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
	results map[string]lastResult
	clock   func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		results: make(map[string]lastResult),
		clock:   time.Now,
	}
}

// Register adds an oracle. Names must be unique.
func (r *Registry) Register(e Entry) error {
	if e.Name == "" || e.Oracle == nil {
		return models.ErrInvalidOracleName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.Name]; exists {
		return fmt.Errorf("oracle %q already registered", e.Name)
	}
	r.entries[e.Name] = e
	r.order = append(r.order, e.Name)
	return nil
}

// Get returns the entry for name
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered oracles
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Record stores the outcome of a keeper run and refreshes the oracle gauges
func (r *Registry) Record(results []keeper.Result) {
	now := r.clock()

	r.mu.Lock()
	for _, res := range results {
		r.results[res.Oracle] = lastResult{err: res.Err, at: now}
	}
	r.mu.Unlock()

	for _, s := range r.Statuses() {
		observe(s)
	}
}

// Status returns a snapshot of one oracle
func (r *Registry) Status(name string) (models.OracleStatus, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	last := r.results[name]
	r.mu.RUnlock()
	if !ok {
		return models.OracleStatus{}, false
	}
	return status(e, last), true
}

// Statuses returns snapshots of every oracle in registration order
func (r *Registry) Statuses() []models.OracleStatus {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.order))
	results := make([]lastResult, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.entries[name])
		results = append(results, r.results[name])
	}
	r.mu.RUnlock()

	out := make([]models.OracleStatus, len(entries))
	for i, e := range entries {
		out[i] = status(e, results[i])
	}
	return out
}

func status(e Entry, last lastResult) models.OracleStatus {
	s := models.OracleStatus{
		Name:      e.Name,
		Type:      e.Type,
		Decimals:  e.Decimals,
		UpdatedAt: last.at,
	}
	if b, ok := e.Oracle.(oracle.Breakable); ok {
		s.Broken = b.Broken()
	}
	if u, ok := e.Oracle.(interface{ LastUpdate() time.Time }); ok {
		s.UpdatedAt = u.LastUpdate()
	}

	price, err := e.Oracle.FetchPrice()
	switch {
	case err != nil:
		s.Error = err.Error()
	case last.err != nil:
		s.Error = last.err.Error()
	}
	if err == nil {
		s.Price = price.Dec()
		s.Display = fixedpoint.Format(price, e.Decimals)
	}
	return s
}
