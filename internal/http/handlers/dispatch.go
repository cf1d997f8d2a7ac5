package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kestrelhq/callflow/internal/dispatch"
	"github.com/kestrelhq/callflow/internal/history"
	"github.com/kestrelhq/callflow/internal/observability/metrics"
	"github.com/kestrelhq/callflow/pkg/logging"
)

// cycleRunner is the dispatch surface the handler needs.
type cycleRunner interface {
	RunCycle(ctx context.Context, trigger string) (*dispatch.CycleSummary, error)
}

// cycleHistory lists recent dispatch cycles.
type cycleHistory interface {
	ListRecent(ctx context.Context, limit int) ([]history.CycleRecord, error)
}

// DispatchHandler exposes the manual cycle trigger and cycle history.
type DispatchHandler struct {
	dispatcher cycleRunner
	locker     dispatch.Locker
	history    cycleHistory
	logger     *logging.Logger
}

// NewDispatchHandler creates the dispatch admin handler. History is optional;
// locker defaults to single-process no-op locking.
func NewDispatchHandler(dispatcher cycleRunner, locker dispatch.Locker, hist cycleHistory, logger *logging.Logger) *DispatchHandler {
	if dispatcher == nil {
		panic("handlers: dispatcher cannot be nil")
	}
	if locker == nil {
		locker = dispatch.NoopLocker{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DispatchHandler{
		dispatcher: dispatcher,
		locker:     locker,
		history:    hist,
		logger:     logger,
	}
}

// RunCycle handles POST /api/v1/dispatch/run. The response body is the cycle
// summary; a cycle already in flight answers 409 so the operator knows the
// scheduler got there first.
func (h *DispatchHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	release, err := h.locker.Acquire(ctx)
	if errors.Is(err, dispatch.ErrCycleInFlight) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "a dispatch cycle is already running",
		})
		return
	}
	if err != nil {
		h.logger.Error("dispatch trigger: lock acquire failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	defer release()

	summary, err := h.dispatcher.RunCycle(ctx, dispatch.TriggerManual)
	if err != nil {
		h.logger.Error("dispatch trigger: cycle failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "dispatch cycle failed"})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ListCycles handles GET /api/v1/dispatch/cycles?limit=n.
func (h *DispatchHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "cycle history not configured"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("dispatch cycles: list failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cycles": records,
		"count":  len(records),
	})
}

// StatsHandler reports engine counters folded from the metrics registry.
type StatsHandler struct {
	gatherer func() metrics.EngineSnapshot
}

// NewStatsHandler creates the stats handler. A nil gatherer reads the
// default Prometheus registry.
func NewStatsHandler(gatherer func() metrics.EngineSnapshot) *StatsHandler {
	if gatherer == nil {
		gatherer = func() metrics.EngineSnapshot { return metrics.Snapshot(nil) }
	}
	return &StatsHandler{gatherer: gatherer}
}

// Stats handles GET /api/v1/dispatch/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gatherer())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
