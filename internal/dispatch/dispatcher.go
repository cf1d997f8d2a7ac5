package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/kestrelhq/callflow/internal/calllog"
	"github.com/kestrelhq/callflow/internal/contacts"
	"github.com/kestrelhq/callflow/internal/dialer"
	"github.com/kestrelhq/callflow/internal/history"
	"github.com/kestrelhq/callflow/internal/observability/metrics"
	"github.com/kestrelhq/callflow/internal/settings"
	"github.com/kestrelhq/callflow/pkg/logging"
)

var dispatchTracer = otel.Tracer("callflow.internal.dispatch")

// Triggers recorded on cycle metrics and history rows.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

const defaultGatewayTimeout = 15 * time.Second

type contactStore interface {
	ListPending(ctx context.Context) ([]contacts.Contact, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time) error
}

type callLogStore interface {
	CreateDispatched(ctx context.Context, log *calllog.CallLog) error
}

type cycleRecorder interface {
	RecordCycle(ctx context.Context, rec history.CycleRecord) error
}

// CycleSummary aggregates one dispatch cycle. The JSON field names are the
// wire contract of the manual trigger endpoint.
type CycleSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"successful"`
	Failed    int `json:"failed"`

	failedContactIDs []string
}

// FailedContactIDs returns the contacts whose call initiation failed this
// cycle. They stay eligible for the next cycle.
func (s *CycleSummary) FailedContactIDs() []string {
	return s.failedContactIDs
}

// Dispatcher selects eligible contacts and places one call per contact.
type Dispatcher struct {
	contacts contactStore
	calls    callLogStore
	gateway  dialer.Gateway
	settings settings.Provider

	recorder    cycleRecorder
	metrics     *metrics.EngineMetrics
	logger      *logging.Logger
	callTimeout time.Duration
}

// DispatcherOption customizes dispatcher behavior.
type DispatcherOption func(*Dispatcher)

// WithCycleRecorder wires a history store that keeps one row per cycle.
func WithCycleRecorder(rec cycleRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = rec }
}

// WithMetrics wires engine metrics.
func WithMetrics(m *metrics.EngineMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithCallTimeout bounds each gateway call. Expiry is a per-contact failure.
func WithCallTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.callTimeout = d
		}
	}
}

// NewDispatcher creates a dispatcher. Contact store, call log store, gateway
// and settings provider are required.
func NewDispatcher(contactStore contactStore, callStore callLogStore, gateway dialer.Gateway, provider settings.Provider, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if contactStore == nil {
		panic("dispatch: contact store cannot be nil")
	}
	if callStore == nil {
		panic("dispatch: call log store cannot be nil")
	}
	if gateway == nil {
		panic("dispatch: gateway cannot be nil")
	}
	if provider == nil {
		panic("dispatch: settings provider cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	d := &Dispatcher{
		contacts:    contactStore,
		calls:       callStore,
		gateway:     gateway,
		settings:    provider,
		logger:      logger,
		callTimeout: defaultGatewayTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunCycle runs one dispatch cycle: read settings, select the batch, place
// the calls. Per-contact gateway failures never abort the batch; only
// settings/store errors fail the cycle. Callers must ensure single-flight
// (see Locker).
func (d *Dispatcher) RunCycle(ctx context.Context, trigger string) (*CycleSummary, error) {
	ctx, span := dispatchTracer.Start(ctx, "dispatch.run_cycle")
	defer span.End()

	startedAt := time.Now().UTC()

	policy, err := d.settings.Get(ctx)
	if err != nil {
		d.metrics.ObserveCycle(trigger, "error", time.Since(startedAt).Seconds())
		return nil, fmt.Errorf("dispatch: read settings: %w", err)
	}
	if !policy.AutomationEnabled {
		d.logger.Info("dispatch: automation disabled, skipping cycle")
		return &CycleSummary{}, nil
	}

	pending, err := d.contacts.ListPending(ctx)
	if err != nil {
		d.metrics.ObserveCycle(trigger, "error", time.Since(startedAt).Seconds())
		return nil, fmt.Errorf("dispatch: list pending contacts: %w", err)
	}

	batch := SelectBatch(pending, policy, startedAt)
	summary := &CycleSummary{Total: len(batch)}
	if len(batch) == 0 {
		d.logger.Info("dispatch: no eligible contacts this cycle")
		d.finishCycle(ctx, trigger, startedAt, summary)
		return summary, nil
	}

	d.logger.Info("dispatch: cycle starting",
		"trigger", trigger,
		"eligible", len(batch),
		"batch_size", policy.MaxCallsPerBatch,
	)

	type contactResult struct {
		contactID uuid.UUID
		err       error
	}

	// One goroutine per selected contact; the batch size is the concurrency cap.
	results := make(chan contactResult, len(batch))
	var wg sync.WaitGroup
	for i := range batch {
		c := batch[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- contactResult{contactID: c.ID, err: d.dispatchOne(ctx, &c)}
		}()
	}
	wg.Wait()
	close(results)

	for r := range results {
		if r.err != nil {
			summary.Failed++
			summary.failedContactIDs = append(summary.failedContactIDs, r.contactID.String())
			d.metrics.ObserveCall("error")
			d.logger.Error("dispatch: contact dispatch failed",
				"contact_id", r.contactID,
				"error", r.err,
			)
			continue
		}
		summary.Succeeded++
		d.metrics.ObserveCall("ok")
	}

	d.logger.Info("dispatch: cycle finished",
		"trigger", trigger,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	d.finishCycle(ctx, trigger, startedAt, summary)
	return summary, nil
}

// dispatchOne places one call and records the dispatch. The attempt counter
// is bumped whenever the gateway accepted the call, even if the bookkeeping
// afterwards fails, so a tracking hiccup cannot re-dial the contact early.
func (d *Dispatcher) dispatchOne(ctx context.Context, c *contacts.Contact) error {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	result, err := d.gateway.StartCall(callCtx, dialer.CallRequest{
		To:        c.Phone,
		Variables: dialer.ContactVariables(c, time.Now().UTC()),
	})
	if err != nil {
		return fmt.Errorf("start call: %w", err)
	}

	entry := &calllog.CallLog{
		ContactID:        c.ID,
		ProviderCallID:   result.ProviderCallID,
		InitiationStatus: result.Status,
		Payload:          result.Raw,
	}
	logErr := d.calls.CreateDispatched(ctx, entry)

	if err := d.contacts.RecordAttempt(ctx, c.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if logErr != nil {
		return fmt.Errorf("create call log: %w", logErr)
	}
	return nil
}

func (d *Dispatcher) finishCycle(ctx context.Context, trigger string, startedAt time.Time, summary *CycleSummary) {
	finishedAt := time.Now().UTC()
	d.metrics.ObserveCycle(trigger, "ok", finishedAt.Sub(startedAt).Seconds())

	if d.recorder == nil {
		return
	}
	// Empty scheduled cycles would flood the table; manual triggers are
	// always recorded so operators can see their run.
	if summary.Total == 0 && trigger != TriggerManual {
		return
	}
	rec := history.CycleRecord{
		TriggeredBy:      trigger,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		Total:            summary.Total,
		Succeeded:        summary.Succeeded,
		Failed:           summary.Failed,
		FailedContactIDs: summary.failedContactIDs,
	}
	if err := d.recorder.RecordCycle(ctx, rec); err != nil {
		d.logger.Error("dispatch: failed to record cycle history", "error", err)
	}
}
