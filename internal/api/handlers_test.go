package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/price-oracle/internal/models"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/internal/storage"
)

type fakeOracles struct {
	statuses []models.OracleStatus
}

func (f *fakeOracles) Status(name string) (models.OracleStatus, bool) {
	for _, s := range f.statuses {
		if s.Name == name {
			return s, true
		}
	}
	return models.OracleStatus{}, false
}

func (f *fakeOracles) Statuses() []models.OracleStatus {
	return f.statuses
}

var t0 = time.Unix(1700000000, 0).UTC()

func newTestRouter(events storage.EventStore) *mux.Router {
	oracles := &fakeOracles{statuses: []models.OracleStatus{
		{Name: "eth-usd-twap", Type: "twap", Price: "2150000000000000000000", Display: "2150", Decimals: 18, UpdatedAt: t0},
		{Name: "eth-usd-ma", Type: "moving_average", Decimals: 18, Broken: true, Error: "eth-usd-ma: oracle is broken"},
	}}
	router := mux.NewRouter()
	NewOracleHandler(oracles, events).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return response
}

func TestOracleHandler_ListOracles(t *testing.T) {
	w := serve(newTestRouter(nil), "/api/v1/oracles")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	response := decode(t, w)
	list, ok := response["oracles"].([]interface{})
	if !ok {
		t.Fatal("Expected 'oracles' array in response")
	}
	if len(list) != 2 {
		t.Errorf("Expected 2 oracles, got %d", len(list))
	}
	if response["count"].(float64) != 2 {
		t.Errorf("Expected count 2, got %v", response["count"])
	}
}

func TestOracleHandler_GetOracle(t *testing.T) {
	router := newTestRouter(nil)

	w := serve(router, "/api/v1/oracles/eth-usd-twap")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var status models.OracleStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if status.Display != "2150" {
		t.Errorf("Expected display 2150, got %s", status.Display)
	}

	// Broken oracles are still described
	w = serve(router, "/api/v1/oracles/eth-usd-ma")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	w = serve(router, "/api/v1/oracles/unknown")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestOracleHandler_GetPrice(t *testing.T) {
	router := newTestRouter(nil)

	w := serve(router, "/api/v1/oracles/eth-usd-twap/price")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	response := decode(t, w)
	if response["price"] != "2150000000000000000000" {
		t.Errorf("Expected raw price, got %v", response["price"])
	}

	w = serve(router, "/api/v1/oracles/eth-usd-ma/price")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d for broken oracle, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if decode(t, w)["error"] != "eth-usd-ma: oracle is broken" {
		t.Errorf("Expected broken error message, got %s", w.Body.String())
	}

	w = serve(router, "/api/v1/oracles/unknown/price")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func newEventStore() *storage.MockEventStore {
	return &storage.MockEventStore{Events: []notify.EventRecord{
		{ID: "1", Kind: notify.KindEpochTriggered, Oracle: "eth-usd-twap", Timestamp: t0},
		{ID: "2", Kind: notify.KindPriceChange, Oracle: "eth-usd-twap", Old: "1", New: "2", Timestamp: t0.Add(time.Hour)},
		{ID: "3", Kind: notify.KindOracleBroken, Oracle: "eth-usd-ma", Old: "1", New: "9", Timestamp: t0.Add(2 * time.Hour)},
	}}
}

func TestOracleHandler_ListOracleEvents(t *testing.T) {
	router := newTestRouter(newEventStore())

	w := serve(router, "/api/v1/oracles/eth-usd-twap/events")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	response := decode(t, w)
	if response["count"].(float64) != 2 {
		t.Errorf("Expected 2 events, got %v", response["count"])
	}

	w = serve(router, "/api/v1/oracles/eth-usd-twap/events?kind=PriceChange")
	events := decode(t, w)["events"].([]interface{})
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].(map[string]interface{})["id"] != "2" {
		t.Errorf("Expected event 2, got %v", events[0])
	}

	w = serve(router, "/api/v1/oracles/unknown/events")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestOracleHandler_ListEvents(t *testing.T) {
	router := newTestRouter(newEventStore())

	w := serve(router, "/api/v1/events?limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	response := decode(t, w)
	events := response["events"].([]interface{})
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	// Newest first
	if events[0].(map[string]interface{})["id"] != "3" {
		t.Errorf("Expected newest event first, got %v", events[0])
	}

	w = serve(router, "/api/v1/events?oracle=eth-usd-ma&start_time=2023-11-14T00:00:00Z")
	if decode(t, w)["count"].(float64) != 1 {
		t.Errorf("Expected 1 event for eth-usd-ma, got %s", w.Body.String())
	}
}

func TestOracleHandler_ListEvents_BadQuery(t *testing.T) {
	router := newTestRouter(newEventStore())

	for _, target := range []string{
		"/api/v1/events?limit=0",
		"/api/v1/events?limit=5000",
		"/api/v1/events?offset=-1",
		"/api/v1/events?kind=Unknown",
		"/api/v1/events?start_time=yesterday",
		"/api/v1/events?end_time=tomorrow",
	} {
		w := serve(router, target)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", target, http.StatusBadRequest, w.Code)
		}
	}
}

func TestOracleHandler_ListEvents_StoreErrors(t *testing.T) {
	w := serve(newTestRouter(nil), "/api/v1/events")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d without a store, got %d", http.StatusServiceUnavailable, w.Code)
	}

	store := newEventStore()
	store.GetErr = errors.New("connection reset")
	w = serve(newTestRouter(store), "/api/v1/events")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestHealthRouter(t *testing.T) {
	healthy := func(ctx context.Context) error { return nil }
	router := NewHealthRouter(map[string]ReadinessCheck{"redis": healthy})

	for _, target := range []string{"/health", "/live", "/ready"} {
		w := serve(router, target)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status %d, got %d", target, http.StatusOK, w.Code)
		}
	}

	w := serve(router, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("Expected metrics status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestHealthRouter_NotReady(t *testing.T) {
	router := NewHealthRouter(map[string]ReadinessCheck{
		"redis":    func(ctx context.Context) error { return nil },
		"postgres": func(ctx context.Context) error { return errors.New("event store is not running") },
	})

	w := serve(router, "/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	failed := decode(t, w)["failed"].(map[string]interface{})
	if failed["postgres"] != "event store is not running" {
		t.Errorf("Expected postgres failure, got %v", failed)
	}
	if _, ok := failed["redis"]; ok {
		t.Error("Expected redis to pass")
	}
}
