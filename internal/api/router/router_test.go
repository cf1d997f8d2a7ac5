package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kestrelhq/callflow/internal/dispatch"
	"github.com/kestrelhq/callflow/internal/http/handlers"
	httpmiddleware "github.com/kestrelhq/callflow/internal/http/middleware"
	"github.com/kestrelhq/callflow/internal/reconcile"
	"github.com/kestrelhq/callflow/pkg/logging"
)

const (
	testWebhookSecret = "wh-secret"
	testAdminSecret   = "admin-secret"
)

type noopRunner struct {
	summary dispatch.CycleSummary
}

func (n *noopRunner) RunCycle(_ context.Context, _ string) (*dispatch.CycleSummary, error) {
	s := n.summary
	return &s, nil
}

type noopReconciler struct {
	calls int
}

func (n *noopReconciler) Reconcile(_ context.Context, _ *reconcile.Report) error {
	n.calls++
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *noopReconciler) {
	t.Helper()

	logger := logging.Default()
	rec := &noopReconciler{}

	cfg := &Config{
		Logger:       logger,
		Health:       handlers.NewHealthHandler("callflow-api", "test"),
		Dispatch:     handlers.NewDispatchHandler(&noopRunner{summary: dispatch.CycleSummary{Total: 1, Succeeded: 1}}, nil, nil, logger),
		VoiceWebhook: handlers.NewVoiceWebhookHandler(rec, logger),

		WebhookSecret: testWebhookSecret,
		AdminJWT:      httpmiddleware.AdminJWTConfig{Secret: testAdminSecret},
	}

	return New(cfg), rec
}

func adminToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAdminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterWebhookRequiresSecret(t *testing.T) {
	router, rec := newTestRouter(t)

	body := `{"type":"tool-call","tool_call_id":"tc_1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/voice", strings.NewReader(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rr.Code)
	}
	if rec.calls != 0 {
		t.Errorf("expected no reconcile calls, got %d", rec.calls)
	}
}

func TestRouterWebhookWithSecret(t *testing.T) {
	router, rec := newTestRouter(t)

	body := `{"type":"end-of-call-report","call_control_id":"cc_1","structured_data":{"outcome":"no_answer"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/voice", strings.NewReader(body))
	req.Header.Set(httpmiddleware.WebhookSecretHeader, testWebhookSecret)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rec.calls != 1 {
		t.Errorf("expected the report to reach the reconciler, got %d calls", rec.calls)
	}
}

func TestRouterDispatchRequiresJWT(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/run", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestRouterDispatchRunWithJWT(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/run", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var summary map[string]int
	if err := json.NewDecoder(rr.Body).Decode(&summary); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if summary["total"] != 1 || summary["successful"] != 1 {
		t.Errorf("unexpected summary: %v", summary)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	logger := logging.Default()
	cfg := &Config{
		Logger: logger,
		Health: handlers.NewHealthHandler("callflow-api", "test"),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		AdminJWT: httpmiddleware.AdminJWTConfig{Secret: testAdminSecret},
	}
	router := New(cfg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
