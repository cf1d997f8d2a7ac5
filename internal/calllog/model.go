// Package calllog persists one record per outbound call, keyed by the
// provider's call id. The record is written once at dispatch and updated
// exactly once when the end-of-call report arrives; that single update is
// the idempotency gate against duplicate report delivery.
package calllog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CallLog records one dispatched call and, later, its outcome report.
type CallLog struct {
	ID               uuid.UUID       `json:"id"`
	ContactID        uuid.UUID       `json:"contact_id"`
	ProviderCallID   string          `json:"provider_call_id"`
	InitiationStatus string          `json:"initiation_status"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Report           json.RawMessage `json:"report,omitempty"`
	ReportAttachedAt *time.Time      `json:"report_attached_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// HasReport reports whether the outcome report has already been attached.
func (l *CallLog) HasReport() bool {
	return len(l.Report) > 0
}
