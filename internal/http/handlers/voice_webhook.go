package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kestrelhq/callflow/internal/reconcile"
	"github.com/kestrelhq/callflow/pkg/logging"
)

// reportReconciler settles an end-of-call report against the call log and
// contact store.
type reportReconciler interface {
	Reconcile(ctx context.Context, rep *reconcile.Report) error
}

// webhookEnvelope is the minimal peek needed to discriminate message types
// before handing the raw body to the right consumer.
type webhookEnvelope struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// toolCallAck is returned for mid-call tool invocations. The assistant's
// booking tools run on the provider side; we only acknowledge so the call
// is not stalled waiting on us.
type toolCallAck struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Result     string `json:"result"`
}

// VoiceWebhookHandler receives voice-provider webhook events. End-of-call
// reports are reconciled inline; a non-nil error from the reconciler means
// the report was not attached, so we answer 500 and let the provider
// redeliver. Attach idempotency makes redelivery safe.
type VoiceWebhookHandler struct {
	reconciler reportReconciler
	logger     *logging.Logger
}

// NewVoiceWebhookHandler creates the webhook handler.
func NewVoiceWebhookHandler(reconciler reportReconciler, logger *logging.Logger) *VoiceWebhookHandler {
	if reconciler == nil {
		panic("handlers: reconciler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VoiceWebhookHandler{reconciler: reconciler, logger: logger}
}

// HandleVoice is the HTTP handler for POST /api/v1/webhooks/voice.
func (h *VoiceWebhookHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("voice webhook: failed to read body", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.logger.Warn("voice webhook: failed to parse envelope", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	switch env.Type {
	case reconcile.ReportTypeToolCall:
		h.logger.Info("voice webhook: tool call acknowledged", "tool_call_id", env.ToolCallID)
		writeJSON(w, http.StatusOK, toolCallAck{ToolCallID: env.ToolCallID, Result: ""})

	case reconcile.ReportTypeEndOfCall:
		rep, err := reconcile.ParseReport(body)
		if err != nil {
			h.logger.Warn("voice webhook: rejected end-of-call report", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid report"})
			return
		}
		if err := h.reconciler.Reconcile(ctx, rep); err != nil {
			h.logger.Error("voice webhook: reconcile failed",
				"provider_call_id", rep.CallControlID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})

	case "":
		h.logger.Warn("voice webhook: missing message type")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing message type"})

	default:
		h.logger.Warn("voice webhook: ignoring unhandled message type", "type", env.Type)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}
