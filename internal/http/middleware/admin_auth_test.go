package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAdminJWTMissingSecret(t *testing.T) {
	mw := AdminJWT(AdminJWTConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/run", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAdminJWTMissingHeader(t *testing.T) {
	mw := AdminJWT(AdminJWTConfig{Secret: "secret"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/run", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAdminJWTInvalidToken(t *testing.T) {
	mw := AdminJWT(AdminJWTConfig{Secret: "secret"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/run", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "wrong", jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAdminJWTValidToken(t *testing.T) {
	mw := AdminJWT(AdminJWTConfig{Secret: "secret"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/run", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}))
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := AdminClaimsFromContext(r.Context())
		if !ok {
			t.Fatalf("expected admin claims in context")
		}
		if claims.Subject != "ops" {
			t.Fatalf("expected subject ops, got %q", claims.Subject)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestAdminJWTPinnedIssuerAndAudience(t *testing.T) {
	mw := AdminJWT(AdminJWTConfig{Secret: "secret", Issuer: "callflow", Audience: "callflow-admin"})

	cases := []struct {
		name   string
		claims jwt.RegisteredClaims
		want   int
	}{
		{
			name: "matching claims",
			claims: jwt.RegisteredClaims{
				Issuer:    "callflow",
				Audience:  jwt.ClaimStrings{"callflow-admin"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			},
			want: http.StatusOK,
		},
		{
			name: "wrong issuer",
			claims: jwt.RegisteredClaims{
				Issuer:    "someone-else",
				Audience:  jwt.ClaimStrings{"callflow-admin"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "missing audience",
			claims: jwt.RegisteredClaims{
				Issuer:    "callflow",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "expired",
			claims: jwt.RegisteredClaims{
				Issuer:    "callflow",
				Audience:  jwt.ClaimStrings{"callflow-admin"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-5 * time.Minute)),
			},
			want: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/run", nil)
			req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", tc.claims))
			rec := httptest.NewRecorder()

			mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func signedAdminToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
