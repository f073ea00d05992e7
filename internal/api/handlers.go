package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/price-oracle/internal/models"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/internal/storage"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// StatusProvider serves oracle snapshots
type StatusProvider interface {
	Status(name string) (models.OracleStatus, bool)
	Statuses() []models.OracleStatus
}

// OracleHandler handles oracle read endpoints
type OracleHandler struct {
	oracles StatusProvider
	events  storage.EventStore
}

// NewOracleHandler creates a new oracle handler. events may be nil when no
// event store is configured.
func NewOracleHandler(oracles StatusProvider, events storage.EventStore) *OracleHandler {
	return &OracleHandler{
		oracles: oracles,
		events:  events,
	}
}

// RegisterRoutes adds the handler's endpoints to a router
func (h *OracleHandler) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/oracles", h.ListOracles).Methods("GET")
	v1.HandleFunc("/oracles/{name}", h.GetOracle).Methods("GET")
	v1.HandleFunc("/oracles/{name}/price", h.GetPrice).Methods("GET")
	v1.HandleFunc("/oracles/{name}/events", h.ListOracleEvents).Methods("GET")
	v1.HandleFunc("/events", h.ListEvents).Methods("GET")
}

// ListOracles handles GET /api/v1/oracles
func (h *OracleHandler) ListOracles(w http.ResponseWriter, r *http.Request) {
	statuses := h.oracles.Statuses()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"oracles": statuses,
		"count":   len(statuses),
	})
}

// GetOracle handles GET /api/v1/oracles/{name}
func (h *OracleHandler) GetOracle(w http.ResponseWriter, r *http.Request) {
	status, ok := h.oracles.Status(mux.Vars(r)["name"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Oracle not found")
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// GetPrice handles GET /api/v1/oracles/{name}/price. A broken or failing
// oracle answers 503 so consumers never read a stale price as current.
func (h *OracleHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	status, ok := h.oracles.Status(mux.Vars(r)["name"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Oracle not found")
		return
	}
	if status.Price == "" {
		msg := "Oracle unavailable"
		if status.Error != "" {
			msg = status.Error
		}
		respondWithError(w, http.StatusServiceUnavailable, msg)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"name":     status.Name,
		"price":    status.Price,
		"display":  status.Display,
		"decimals": status.Decimals,
	})
}

// ListOracleEvents handles GET /api/v1/oracles/{name}/events
func (h *OracleHandler) ListOracleEvents(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := h.oracles.Status(name); !ok {
		respondWithError(w, http.StatusNotFound, "Oracle not found")
		return
	}
	h.listEvents(w, r, name)
}

// ListEvents handles GET /api/v1/events
func (h *OracleHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, r.URL.Query().Get("oracle"))
}

func (h *OracleHandler) listEvents(w http.ResponseWriter, r *http.Request, oracleName string) {
	if h.events == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Event history is not enabled")
		return
	}

	filter, err := parseEventFilter(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Oracle = oracleName

	events, err := h.events.GetEvents(r.Context(), filter)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to query events",
			logger.String("oracle", oracleName),
			logger.ErrorField(err),
		)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

var errBadQuery = errors.New("invalid query")

func parseEventFilter(r *http.Request) (storage.EventFilter, error) {
	q := r.URL.Query()
	filter := storage.EventFilter{
		Kind:  notify.Kind(q.Get("kind")),
		Limit: defaultEventLimit,
	}

	switch filter.Kind {
	case "", notify.KindPriceChange, notify.KindFeedPriceChange, notify.KindEpochTriggered,
		notify.KindLastGoodPriceUpdated, notify.KindOracleBroken:
	default:
		return filter, fmt.Errorf("%w: unknown kind %q", errBadQuery, filter.Kind)
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := parseInt(limitStr)
		if err != nil || limit <= 0 || limit > maxEventLimit {
			return filter, fmt.Errorf("%w: limit must be between 1 and %d", errBadQuery, maxEventLimit)
		}
		filter.Limit = limit
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := parseInt(offsetStr)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("%w: offset must be non-negative", errBadQuery)
		}
		filter.Offset = offset
	}

	// Parse date range
	if startStr := q.Get("start_time"); startStr != "" {
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return filter, fmt.Errorf("%w: start_time must be RFC 3339", errBadQuery)
		}
		filter.StartTime = start
	}
	if endStr := q.Get("end_time"); endStr != "" {
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return filter, fmt.Errorf("%w: end_time must be RFC 3339", errBadQuery)
		}
		filter.EndTime = end
	}

	return filter, nil
}

func parseInt(s string) (int, error) {
	var result int
	_, err := fmt.Sscanf(s, "%d", &result)
	return result, err
}
