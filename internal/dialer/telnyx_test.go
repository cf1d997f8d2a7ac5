package dialer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewTelnyxClient_MissingConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  TelnyxConfig
	}{
		{"missing api key", TelnyxConfig{AssistantID: "ast_1", FromNumber: "+15550001111"}},
		{"missing assistant", TelnyxConfig{APIKey: "key_1", FromNumber: "+15550001111"}},
		{"missing from", TelnyxConfig{APIKey: "key_1", AssistantID: "ast_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTelnyxClient(tt.cfg)
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStartCall_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/texml/ai_calls/ast_test") {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test_key" {
			t.Errorf("auth: got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type: got %q", r.Header.Get("Content-Type"))
		}

		var req telnyxCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.From != "+15559876543" {
			t.Errorf("From: got %q", req.From)
		}
		if req.To != "+15551234567" {
			t.Errorf("To: got %q", req.To)
		}
		if req.MachineDetection != "Enable" {
			t.Errorf("MachineDetection: got %q", req.MachineDetection)
		}
		if req.Variables["contact_name"] != "Dana Reyes" {
			t.Errorf("Variables[contact_name]: got %q", req.Variables["contact_name"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(telnyxCallEnvelope{
			Data: telnyxCallData{
				CallControlID: "cc_123",
				CallLegID:     "cl_456",
				CallSessionID: "cs_789",
				IsAlive:       true,
			},
		})
	}))
	defer server.Close()

	client, err := NewTelnyxClient(TelnyxConfig{
		APIKey:      "test_key",
		AssistantID: "ast_test",
		FromNumber:  "+15559876543",
		BaseURL:     server.URL,
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	result, err := client.StartCall(context.Background(), CallRequest{
		To:        "+15551234567",
		Variables: map[string]string{"contact_name": "Dana Reyes"},
	})
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if result.ProviderCallID != "cc_123" {
		t.Errorf("ProviderCallID: got %q", result.ProviderCallID)
	}
	if result.Status != StatusInitiated {
		t.Errorf("Status: got %q", result.Status)
	}

	// Raw must carry the provider body verbatim.
	var raw telnyxCallEnvelope
	if err := json.Unmarshal(result.Raw, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw.Data.CallSessionID != "cs_789" {
		t.Errorf("raw call_session_id: got %q", raw.Data.CallSessionID)
	}
}

func TestStartCall_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"title":"Invalid phone number"}]}`))
	}))
	defer server.Close()

	client, _ := NewTelnyxClient(TelnyxConfig{
		APIKey:      "test_key",
		AssistantID: "ast_test",
		FromNumber:  "+15559876543",
		BaseURL:     server.URL,
	})

	_, err := client.StartCall(context.Background(), CallRequest{To: "+15551234567"})
	if err == nil {
		t.Fatal("expected error for 422")
	}
	if !strings.Contains(err.Error(), "422") {
		t.Errorf("error should carry status code, got %v", err)
	}
}

func TestStartCall_MissingCallID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client, _ := NewTelnyxClient(TelnyxConfig{
		APIKey:      "test_key",
		AssistantID: "ast_test",
		FromNumber:  "+15559876543",
		BaseURL:     server.URL,
	})

	_, err := client.StartCall(context.Background(), CallRequest{To: "+15551234567"})
	if err == nil {
		t.Fatal("expected error for missing call id")
	}
}

func TestStartCall_MissingTo(t *testing.T) {
	client, _ := NewTelnyxClient(TelnyxConfig{
		APIKey:      "test_key",
		AssistantID: "ast_test",
		FromNumber:  "+15559876543",
	})

	_, err := client.StartCall(context.Background(), CallRequest{})
	if err == nil {
		t.Error("expected error for missing to")
	}
}

func TestMaskPhone(t *testing.T) {
	if got := maskPhone("+15551234567"); got != "***4567" {
		t.Errorf("maskPhone: got %q", got)
	}
	if got := maskPhone("123"); got != "****" {
		t.Errorf("maskPhone short: got %q", got)
	}
}
