package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kestrelhq/callflow/internal/dispatch"
	"github.com/kestrelhq/callflow/internal/history"
	"github.com/kestrelhq/callflow/internal/observability/metrics"
	"github.com/kestrelhq/callflow/pkg/logging"
)

// --- mocks ---

type stubCycleRunner struct {
	summary  *dispatch.CycleSummary
	err      error
	calls    int
	triggers []string
}

func (s *stubCycleRunner) RunCycle(_ context.Context, trigger string) (*dispatch.CycleSummary, error) {
	s.calls++
	s.triggers = append(s.triggers, trigger)
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

type stubHandlerLocker struct {
	err      error
	acquired int
	released int
}

func (s *stubHandlerLocker) Acquire(_ context.Context) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	s.acquired++
	return func() { s.released++ }, nil
}

type stubCycleHistory struct {
	records []history.CycleRecord
	err     error
	limits  []int
}

func (s *stubCycleHistory) ListRecent(_ context.Context, limit int) ([]history.CycleRecord, error) {
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

// --- tests ---

func TestDispatchHandler_RunCycle(t *testing.T) {
	runner := &stubCycleRunner{summary: &dispatch.CycleSummary{Total: 3, Succeeded: 2, Failed: 1}}
	locker := &stubHandlerLocker{}
	h := NewDispatchHandler(runner, locker, nil, logging.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/run", nil)
	w := httptest.NewRecorder()

	h.RunCycle(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected application/json, got %q", got)
	}

	var body map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["total"] != 3 || body["successful"] != 2 || body["failed"] != 1 {
		t.Errorf("unexpected summary body: %v", body)
	}

	if runner.calls != 1 {
		t.Errorf("expected 1 cycle run, got %d", runner.calls)
	}
	if len(runner.triggers) != 1 || runner.triggers[0] != dispatch.TriggerManual {
		t.Errorf("expected manual trigger, got %v", runner.triggers)
	}
	if locker.released != 1 {
		t.Errorf("expected lock released once, got %d", locker.released)
	}
}

func TestDispatchHandler_RunCycleConflictWhenLockHeld(t *testing.T) {
	runner := &stubCycleRunner{summary: &dispatch.CycleSummary{}}
	locker := &stubHandlerLocker{err: dispatch.ErrCycleInFlight}
	h := NewDispatchHandler(runner, locker, nil, logging.Default())

	w := httptest.NewRecorder()
	h.RunCycle(w, httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/run", nil))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if runner.calls != 0 {
		t.Errorf("expected no cycle run while lock held, got %d", runner.calls)
	}
}

func TestDispatchHandler_RunCycleLockError(t *testing.T) {
	runner := &stubCycleRunner{summary: &dispatch.CycleSummary{}}
	locker := &stubHandlerLocker{err: errors.New("redis down")}
	h := NewDispatchHandler(runner, locker, nil, logging.Default())

	w := httptest.NewRecorder()
	h.RunCycle(w, httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/run", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if runner.calls != 0 {
		t.Errorf("expected no cycle run, got %d", runner.calls)
	}
}

func TestDispatchHandler_RunCycleFailure(t *testing.T) {
	runner := &stubCycleRunner{err: errors.New("database unreachable")}
	locker := &stubHandlerLocker{}
	h := NewDispatchHandler(runner, locker, nil, logging.Default())

	w := httptest.NewRecorder()
	h.RunCycle(w, httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/run", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if locker.released != 1 {
		t.Errorf("expected lock released after failed cycle, got %d", locker.released)
	}
}

func TestDispatchHandler_ListCycles(t *testing.T) {
	hist := &stubCycleHistory{records: []history.CycleRecord{
		{
			ID:          "cycle-1",
			TriggeredBy: dispatch.TriggerSchedule,
			StartedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			FinishedAt:  time.Date(2026, 3, 1, 9, 0, 2, 0, time.UTC),
			Total:       5,
			Succeeded:   5,
		},
	}}
	h := NewDispatchHandler(&stubCycleRunner{}, nil, hist, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/cycles?limit=10", nil)
	w := httptest.NewRecorder()

	h.ListCycles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(hist.limits) != 1 || hist.limits[0] != 10 {
		t.Errorf("expected limit 10 passed through, got %v", hist.limits)
	}

	var body struct {
		Cycles []history.CycleRecord `json:"cycles"`
		Count  int                   `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Count != 1 || len(body.Cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %+v", body)
	}
	if body.Cycles[0].ID != "cycle-1" || body.Cycles[0].TriggeredBy != dispatch.TriggerSchedule {
		t.Errorf("unexpected cycle record: %+v", body.Cycles[0])
	}
}

func TestDispatchHandler_ListCyclesBadLimit(t *testing.T) {
	h := NewDispatchHandler(&stubCycleRunner{}, nil, &stubCycleHistory{}, logging.Default())

	for _, limit := range []string{"abc", "-1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/cycles?limit="+limit, nil)
		w := httptest.NewRecorder()

		h.ListCycles(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit %q: expected 400, got %d", limit, w.Code)
		}
	}
}

func TestDispatchHandler_ListCyclesStoreError(t *testing.T) {
	hist := &stubCycleHistory{err: errors.New("database unreachable")}
	h := NewDispatchHandler(&stubCycleRunner{}, nil, hist, logging.Default())

	w := httptest.NewRecorder()
	h.ListCycles(w, httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/cycles", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestDispatchHandler_ListCyclesWithoutHistory(t *testing.T) {
	h := NewDispatchHandler(&stubCycleRunner{}, nil, nil, logging.Default())

	w := httptest.NewRecorder()
	h.ListCycles(w, httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/cycles", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStatsHandler_Stats(t *testing.T) {
	snap := metrics.EngineSnapshot{
		CyclesTotal:     4,
		CallsDispatched: 12,
		CallsFailed:     2,
		ReportsTotal:    10,
		FollowUpsSent:   3,
	}
	h := NewStatsHandler(func() metrics.EngineSnapshot { return snap })

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body metrics.EngineSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body != snap {
		t.Errorf("expected %+v, got %+v", snap, body)
	}
}

func TestHealthHandler_Health(t *testing.T) {
	h := NewHealthHandler("callflow-api", "1.4.0")

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "callflow-api" || body["version"] != "1.4.0" {
		t.Errorf("unexpected health body: %v", body)
	}
}
