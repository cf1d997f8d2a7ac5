// Package reconcile consumes end-of-call reports and settles each call's
// outcome onto its contact: status, booking reference, and the follow-up
// email decision. Reconciliation is idempotent per provider call id; the
// call log's single report-attach is the gate against duplicate delivery.
package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kestrelhq/callflow/internal/contacts"
)

// Report type discriminators. The provider posts both variants to the same
// webhook; only the end-of-call report reaches the reconciler.
const (
	ReportTypeToolCall  = "tool-call"
	ReportTypeEndOfCall = "end-of-call-report"
)

// Outcome values the provider's assistant is allowed to report.
const (
	OutcomeNoAnswer      = "no_answer"
	OutcomeScheduled     = "scheduled"
	OutcomeNotInterested = "not_interested"
)

// Report is the end-of-call variant of the provider webhook envelope.
type Report struct {
	Type           string          `json:"type"`
	CallControlID  string          `json:"call_control_id"`
	Transcript     string          `json:"transcript,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	StructuredData *StructuredData `json:"structured_data,omitempty"`

	// raw is the body exactly as the provider delivered it; the call log
	// stores these bytes, never a re-marshal.
	raw []byte
}

// Raw returns the provider's exact report bytes.
func (r *Report) Raw() []byte { return r.raw }

// StructuredData carries the assistant's structured verdict for the call.
type StructuredData struct {
	Outcome string         `json:"outcome"`
	Booking *BookingResult `json:"booking,omitempty"`
}

// BookingResult reports the mid-call booking tool's final state.
type BookingResult struct {
	Status string      `json:"status"`
	Data   BookingData `json:"data"`
}

// BookingData carries the scheduling system's identifiers.
type BookingData struct {
	BookingID string `json:"bookingId"`
}

// Succeeded reports whether the booking payload confirms a created booking.
func (b *BookingResult) Succeeded() bool {
	return b != nil && b.Status == "success" && b.Data.BookingID != ""
}

// ParseReport validates an end-of-call report body at the webhook boundary.
// Shapes that do not parse, carry the wrong type, or lack a call id are
// rejected here and never reach the reconciler.
func ParseReport(body []byte) (*Report, error) {
	var rep Report
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, fmt.Errorf("reconcile: parse report: %w", err)
	}
	if rep.Type != ReportTypeEndOfCall {
		return nil, fmt.Errorf("reconcile: unexpected report type %q", rep.Type)
	}
	if rep.CallControlID == "" {
		return nil, errors.New("reconcile: report missing call_control_id")
	}
	rep.raw = append([]byte(nil), body...)
	return &rep, nil
}

var outcomeStatuses = map[string]contacts.Status{
	OutcomeNoAnswer:      contacts.StatusNoAnswer,
	OutcomeScheduled:     contacts.StatusScheduled,
	OutcomeNotInterested: contacts.StatusNotInterested,
}

// classifyOutcome maps the report's structured outcome onto a contact
// status. A report without a structured verdict classifies as error: the
// call happened but produced nothing usable. A present but unrecognized
// outcome returns ok=false; the caller discards it rather than guessing.
func classifyOutcome(rep *Report) (contacts.Status, bool) {
	if rep.StructuredData == nil || rep.StructuredData.Outcome == "" {
		return contacts.StatusError, true
	}
	status, ok := outcomeStatuses[rep.StructuredData.Outcome]
	if !ok {
		return "", false
	}
	return status, true
}
