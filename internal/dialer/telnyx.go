package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kestrelhq/callflow/pkg/logging"
)

const (
	defaultTelnyxBaseURL = "https://api.telnyx.com/v2"
	defaultCallTimeout   = 15 * time.Second
)

var dialTracer = otel.Tracer("callflow.internal.dialer")

// TelnyxClient initiates outbound AI voice calls via the Telnyx API.
type TelnyxClient struct {
	apiKey      string
	assistantID string
	fromNumber  string
	baseURL     string
	httpClient  *http.Client
	logger      *logging.Logger
}

// TelnyxConfig configures the outbound voice client.
type TelnyxConfig struct {
	// APIKey is the Telnyx API key (Bearer token).
	APIKey string
	// AssistantID is the Telnyx AI Assistant running the call script.
	AssistantID string
	// FromNumber is the campaign's Telnyx phone number (E.164).
	FromNumber string
	// BaseURL overrides the Telnyx API base URL (for testing).
	BaseURL string
	// Timeout bounds each initiation request. Defaults to 15s.
	Timeout time.Duration
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewTelnyxClient creates a client for initiating outbound AI voice calls.
func NewTelnyxClient(cfg TelnyxConfig) (*TelnyxClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("dialer: telnyx API key required")
	}
	if strings.TrimSpace(cfg.AssistantID) == "" {
		return nil, fmt.Errorf("dialer: telnyx assistant ID required")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, fmt.Errorf("dialer: from number required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTelnyxBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxClient{
		apiKey:      cfg.APIKey,
		assistantID: cfg.AssistantID,
		fromNumber:  cfg.FromNumber,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

var _ Gateway = (*TelnyxClient)(nil)

// telnyxCallRequest is the Telnyx AI call payload (PascalCase per their API).
type telnyxCallRequest struct {
	From             string            `json:"From"`
	To               string            `json:"To"`
	MachineDetection string            `json:"MachineDetection,omitempty"`
	AsyncAmd         bool              `json:"AsyncAmd,omitempty"`
	DetectionMode    string            `json:"DetectionMode,omitempty"`
	Variables        map[string]string `json:"Variables,omitempty"`
}

// telnyxCallData is the inner response object for call initiation.
type telnyxCallData struct {
	CallControlID string `json:"call_control_id"`
	CallLegID     string `json:"call_leg_id"`
	CallSessionID string `json:"call_session_id"`
	IsAlive       bool   `json:"is_alive"`
}

// telnyxCallEnvelope wraps the Telnyx response envelope.
type telnyxCallEnvelope struct {
	Data telnyxCallData `json:"data"`
}

// StartCall places one outbound AI voice call.
func (c *TelnyxClient) StartCall(ctx context.Context, req CallRequest) (*CallResult, error) {
	if req.To == "" {
		return nil, fmt.Errorf("dialer: to phone number required")
	}

	ctx, span := dialTracer.Start(ctx, "dialer.telnyx.start_call")
	defer span.End()
	span.SetAttributes(attribute.String("callflow.to", maskPhone(req.To)))

	payload := telnyxCallRequest{
		From:             c.fromNumber,
		To:               req.To,
		MachineDetection: "Enable",
		AsyncAmd:         true,
		DetectionMode:    "Premium",
		Variables:        req.Variables,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dialer: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/texml/ai_calls/%s", c.baseURL, c.assistantID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dialer: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("dialer: initiating outbound call",
		"to", maskPhone(req.To),
		"assistant_id", c.assistantID,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dialer: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("dialer: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("dialer: telnyx API error",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		err := fmt.Errorf("dialer: telnyx API returned %d: %s", resp.StatusCode, string(respBody))
		span.RecordError(err)
		return nil, err
	}

	var envelope telnyxCallEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("dialer: decode response: %w", err)
	}
	if envelope.Data.CallControlID == "" {
		return nil, fmt.Errorf("dialer: response missing call id")
	}

	c.logger.Info("dialer: outbound call initiated",
		"provider_call_id", envelope.Data.CallControlID,
		"to", maskPhone(req.To),
	)

	return &CallResult{
		ProviderCallID: envelope.Data.CallControlID,
		Status:         StatusInitiated,
		Raw:            json.RawMessage(respBody),
	}, nil
}

func maskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}
