package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kestrelhq/callflow/internal/archive"
	"github.com/kestrelhq/callflow/internal/calllog"
	"github.com/kestrelhq/callflow/internal/contacts"
	"github.com/kestrelhq/callflow/internal/notify"
	"github.com/kestrelhq/callflow/internal/observability/metrics"
	"github.com/kestrelhq/callflow/internal/settings"
	"github.com/kestrelhq/callflow/pkg/logging"
)

var reconcileTracer = otel.Tracer("callflow.internal.reconcile")

const defaultSendTimeout = 10 * time.Second

type contactStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*contacts.Contact, error)
	ApplyOutcome(ctx context.Context, id uuid.UUID, status contacts.Status, bookingRef *string) error
	ClaimFollowUp(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseFollowUp(ctx context.Context, id uuid.UUID) error
}

type callLogStore interface {
	GetByProviderCallID(ctx context.Context, providerCallID string) (*calllog.CallLog, error)
	AttachReport(ctx context.Context, providerCallID string, report []byte, at time.Time) (bool, error)
}

type replayPublisher interface {
	Publish(ctx context.Context, providerCallID string) error
}

// Reconciler settles end-of-call reports onto contacts.
type Reconciler struct {
	contacts contactStore
	calls    callLogStore
	sender   notify.EmailSender
	settings settings.Provider

	archive     *archive.Store
	replay      replayPublisher
	metrics     *metrics.EngineMetrics
	logger      *logging.Logger
	brandName   string
	sendTimeout time.Duration
}

// ReconcilerOption customizes reconciler behavior.
type ReconcilerOption func(*Reconciler)

// WithArchive wires the S3 report archive. Archive failures never fail
// reconciliation.
func WithArchive(store *archive.Store) ReconcilerOption {
	return func(r *Reconciler) { r.archive = store }
}

// WithReplayPublisher wires the queue that retries contact updates which
// failed after the report was already acknowledged.
func WithReplayPublisher(q replayPublisher) ReconcilerOption {
	return func(r *Reconciler) { r.replay = q }
}

// WithMetrics wires engine metrics.
func WithMetrics(m *metrics.EngineMetrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// WithBrandName sets the sign-off name used in follow-up emails.
func WithBrandName(name string) ReconcilerOption {
	return func(r *Reconciler) { r.brandName = name }
}

// WithSendTimeout bounds each follow-up send. Expiry is a send failure.
func WithSendTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

// NewReconciler creates a reconciler. Contact store, call log store, email
// sender and settings provider are required.
func NewReconciler(contactStore contactStore, callStore callLogStore, sender notify.EmailSender, provider settings.Provider, logger *logging.Logger, opts ...ReconcilerOption) *Reconciler {
	if contactStore == nil {
		panic("reconcile: contact store cannot be nil")
	}
	if callStore == nil {
		panic("reconcile: call log store cannot be nil")
	}
	if sender == nil {
		panic("reconcile: email sender cannot be nil")
	}
	if provider == nil {
		panic("reconcile: settings provider cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	r := &Reconciler{
		contacts:    contactStore,
		calls:       callStore,
		sender:      sender,
		settings:    provider,
		logger:      logger,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile settles one end-of-call report. Idempotent per provider call id:
// the first delivery attaches the report and updates the contact, every
// later delivery is acknowledged without touching the contact.
//
// An error return means the report was NOT attached (call log unreachable);
// the caller should answer with a server error so the provider redelivers.
// Once the report is attached, contact-side failures are logged, queued for
// replay, and swallowed, because the provider will not send this report
// again.
func (r *Reconciler) Reconcile(ctx context.Context, rep *Report) error {
	ctx, span := reconcileTracer.Start(ctx, "reconcile.report")
	defer span.End()
	span.SetAttributes(attribute.String("callflow.provider_call_id", rep.CallControlID))

	entry, err := r.calls.GetByProviderCallID(ctx, rep.CallControlID)
	if errors.Is(err, calllog.ErrNotFound) {
		r.metrics.ObserveReport("unknown_call")
		r.logger.Warn("reconcile: report for unknown call, discarding",
			"provider_call_id", rep.CallControlID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: look up call log: %w", err)
	}

	attached, err := r.calls.AttachReport(ctx, rep.CallControlID, rep.Raw(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reconcile: attach report: %w", err)
	}
	if !attached {
		r.metrics.ObserveReport("duplicate")
		r.logger.Info("reconcile: duplicate report, contact already settled",
			"provider_call_id", rep.CallControlID,
		)
		return nil
	}

	r.archiveReport(ctx, entry, rep)

	if err := r.apply(ctx, entry.ContactID, rep); err != nil {
		r.logger.Error("reconcile: contact update failed after report attach",
			"provider_call_id", rep.CallControlID,
			"contact_id", entry.ContactID,
			"error", err,
		)
		r.enqueueReplay(ctx, rep.CallControlID)
	}
	return nil
}

// Replay re-applies the stored report for one call. Everything it does is
// idempotent: the status set is absolute, the booking reference set is
// guarded, and the follow-up send is claim-gated. Safe to run any number of
// times.
func (r *Reconciler) Replay(ctx context.Context, providerCallID string) error {
	entry, err := r.calls.GetByProviderCallID(ctx, providerCallID)
	if errors.Is(err, calllog.ErrNotFound) {
		r.logger.Warn("reconcile: replay for unknown call, dropping", "provider_call_id", providerCallID)
		return nil
	}
	if err != nil {
		r.metrics.ObserveReplay("error")
		return fmt.Errorf("reconcile: replay lookup: %w", err)
	}
	if !entry.HasReport() {
		r.logger.Warn("reconcile: replay for call without report, dropping", "provider_call_id", providerCallID)
		return nil
	}

	rep, err := ParseReport(entry.Report)
	if err != nil {
		r.logger.Warn("reconcile: stored report no longer parses, dropping replay",
			"provider_call_id", providerCallID,
			"error", err,
		)
		return nil
	}

	if err := r.apply(ctx, entry.ContactID, rep); err != nil {
		r.metrics.ObserveReplay("error")
		return fmt.Errorf("reconcile: replay apply: %w", err)
	}
	r.metrics.ObserveReplay("ok")
	return nil
}

// apply runs the contact side of reconciliation: classify the outcome, set
// the status and booking reference, then decide and send the follow-up.
func (r *Reconciler) apply(ctx context.Context, contactID uuid.UUID, rep *Report) error {
	if contactID == uuid.Nil {
		r.metrics.ObserveReport("discarded")
		r.logger.Warn("reconcile: call log has no contact id, discarding report",
			"provider_call_id", rep.CallControlID,
		)
		return nil
	}

	status, ok := classifyOutcome(rep)
	if !ok {
		r.metrics.ObserveReport("discarded")
		r.logger.Warn("reconcile: unrecognized outcome, discarding report",
			"provider_call_id", rep.CallControlID,
			"outcome", rep.StructuredData.Outcome,
		)
		return nil
	}

	var bookingRef *string
	if status == contacts.StatusScheduled {
		if booking := rep.StructuredData.Booking; booking.Succeeded() {
			id := booking.Data.BookingID
			bookingRef = &id
		} else {
			// Data anomaly, not a failure: the call scheduled something but
			// the booking payload cannot confirm what.
			r.logger.Warn("reconcile: scheduled outcome without a confirmed booking id",
				"provider_call_id", rep.CallControlID,
				"contact_id", contactID,
			)
		}
	}

	if err := r.contacts.ApplyOutcome(ctx, contactID, status, bookingRef); err != nil {
		return fmt.Errorf("apply outcome: %w", err)
	}
	r.metrics.ObserveReport(string(status))
	r.logger.Info("reconcile: contact outcome applied",
		"provider_call_id", rep.CallControlID,
		"contact_id", contactID,
		"status", string(status),
	)

	contact, err := r.contacts.GetByID(ctx, contactID)
	if err != nil {
		return fmt.Errorf("reload contact: %w", err)
	}
	policy, err := r.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	reason, due := FollowUpDue(contact, policy)
	if !due {
		return nil
	}
	return r.sendFollowUp(ctx, contact, reason)
}

// FollowUpDue reports whether the contact has earned the follow-up email:
// the flag is still unset and the contact either declined outright or spent
// the whole attempt budget without answering.
func FollowUpDue(c *contacts.Contact, s *settings.AutomationSettings) (notify.FollowUpReason, bool) {
	if c.FollowUpSent {
		return "", false
	}
	switch {
	case c.Status == contacts.StatusNotInterested:
		return notify.ReasonNotInterested, true
	case c.Status == contacts.StatusNoAnswer && c.CallAttempts >= s.MaxAttempts:
		return notify.ReasonMaxAttempts, true
	}
	return "", false
}

// sendFollowUp claims the follow_up_sent flag, sends, and releases the claim
// if the send fails. The claim is what keeps concurrent duplicate reports at
// one send; the release is what keeps a failed send retryable.
func (r *Reconciler) sendFollowUp(ctx context.Context, c *contacts.Contact, reason notify.FollowUpReason) error {
	if c.Email == "" {
		r.logger.Warn("reconcile: follow-up due but contact has no email",
			"contact_id", c.ID,
			"reason", string(reason),
		)
		return nil
	}

	won, err := r.contacts.ClaimFollowUp(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("claim follow-up: %w", err)
	}
	if !won {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()

	if err := r.sender.Send(sendCtx, notify.FollowUpEmail(c, reason, r.brandName)); err != nil {
		r.metrics.ObserveFollowUp("failed")
		if relErr := r.contacts.ReleaseFollowUp(ctx, c.ID); relErr != nil {
			r.logger.Error("reconcile: follow-up release failed, flag stuck set",
				"contact_id", c.ID,
				"error", relErr,
			)
		}
		return fmt.Errorf("send follow-up: %w", err)
	}

	r.metrics.ObserveFollowUp("sent")
	r.logger.Info("reconcile: follow-up email sent",
		"contact_id", c.ID,
		"reason", string(reason),
	)
	return nil
}

func (r *Reconciler) archiveReport(ctx context.Context, entry *calllog.CallLog, rep *Report) {
	if !r.archive.Enabled() {
		return
	}
	manifest := archive.ManifestEntry{
		ProviderCallID: rep.CallControlID,
		ContactID:      entry.ContactID.String(),
	}
	if rep.StructuredData != nil {
		manifest.Outcome = rep.StructuredData.Outcome
	}
	if err := r.archive.ArchiveReport(ctx, manifest, rep.Raw(), time.Now().UTC()); err != nil {
		r.logger.Warn("reconcile: report archive failed",
			"provider_call_id", rep.CallControlID,
			"error", err,
		)
	}
}

func (r *Reconciler) enqueueReplay(ctx context.Context, providerCallID string) {
	if r.replay == nil {
		return
	}
	if err := r.replay.Publish(ctx, providerCallID); err != nil {
		r.logger.Error("reconcile: replay publish failed",
			"provider_call_id", providerCallID,
			"error", err,
		)
	}
}
