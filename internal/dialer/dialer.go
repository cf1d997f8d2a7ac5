// Package dialer wraps the third-party voice API that places outbound
// agent calls. The dispatcher only sees the Gateway interface; the Telnyx
// implementation lives here so the HTTP surface stays out of dispatch logic.
package dialer

import (
	"context"
	"encoding/json"
)

// StatusInitiated is the initiation status recorded when the gateway
// accepts a call.
const StatusInitiated = "initiated"

// CallRequest carries everything the voice agent needs to place one call.
type CallRequest struct {
	// To is the contact's phone number (E.164).
	To string
	// Variables are templated into the agent's script (contact name, email,
	// phone, timezone, localized current time).
	Variables map[string]string
}

// CallResult is the gateway's answer to a successful initiation.
type CallResult struct {
	// ProviderCallID is the gateway's identifier for the call. Every later
	// report for this call carries the same id.
	ProviderCallID string
	// Status is the initiation status to record on the call log.
	Status string
	// Raw is the provider response body, stored verbatim for audit.
	Raw json.RawMessage
}

// Gateway starts outbound calls. Implementations must bound each call with
// a timeout; the dispatcher treats an expired call as a per-contact failure,
// never as a cycle abort.
type Gateway interface {
	StartCall(ctx context.Context, req CallRequest) (*CallResult, error)
}
