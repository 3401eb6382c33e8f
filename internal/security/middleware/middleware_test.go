package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/audit"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/auth"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/ratelimit"
)

type fakeAuthenticator struct {
	tokens map[string]*auth.Claims
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	if c, ok := f.tokens[token]; ok {
		return c, nil
	}
	return nil, errors.New("unknown token")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func claimsEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := GetClaimsFromContext(r.Context()); c != nil {
			w.Write([]byte(c.UserID))
			return
		}
		w.Write([]byte("anonymous"))
	})
}

func TestJWTMiddleware(t *testing.T) {
	authn := &fakeAuthenticator{tokens: map[string]*auth.Claims{"good": {UserID: "u1"}}}
	h := JWTMiddleware(authn, discardLogger())(claimsEcho())

	cases := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{name: "public health", target: "/healthz", status: http.StatusOK, body: "anonymous"},
		{name: "public signin", target: "/api/auth/signin", status: http.StatusOK, body: "anonymous"},
		{name: "signout needs token", target: "/api/auth/signout", status: http.StatusUnauthorized},
		{name: "missing header", target: "/api/profile", status: http.StatusUnauthorized},
		{name: "malformed header", target: "/api/profile", header: "Token good", status: http.StatusUnauthorized},
		{name: "unknown token", target: "/api/profile", header: "Bearer bad", status: http.StatusUnauthorized},
		{name: "valid token", target: "/api/profile", header: "Bearer good", status: http.StatusOK, body: "u1"},
		{name: "stream query token", target: "/ws/locations?token=good", status: http.StatusOK, body: "u1"},
		{name: "query token elsewhere", target: "/api/profile?token=good", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("expected body %q, got %q", tc.body, rec.Body.String())
			}
			if tc.status == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), "invalid_credentials") {
				t.Fatalf("expected error code in body, got %s", rec.Body.String())
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.NewLimiter(2, time.Minute)
	defer limiter.Stop()
	h := RateLimitMiddleware(limiter, 1, discardLogger())(claimsEcho())

	call := func(path string, claims *auth.Claims) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if claims != nil {
			req = req.WithContext(WithClaims(req.Context(), claims))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	u1 := &auth.Claims{UserID: "u1"}
	if call("/api/profile", u1) != http.StatusOK || call("/api/profile", u1) != http.StatusOK {
		t.Fatal("expected first two calls allowed")
	}
	if got := call("/api/profile", u1); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := call("/api/profile", &auth.Claims{UserID: "u2"}); got != http.StatusOK {
		t.Fatalf("expected other identity allowed, got %d", got)
	}

	if got := call("/api/auth/signin", nil); got != http.StatusOK {
		t.Fatalf("expected first sign in allowed, got %d", got)
	}
	if got := call("/api/auth/signin", nil); got != http.StatusTooManyRequests {
		t.Fatalf("expected sign in limited per address, got %d", got)
	}
	for i := 0; i < 3; i++ {
		if got := call("/healthz", nil); got != http.StatusOK {
			t.Fatalf("health must not be limited, got %d", got)
		}
	}
}

func TestAuditMiddleware(t *testing.T) {
	var buf bytes.Buffer
	auditLog := audit.NewLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/locations/history" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequestID(discardLogger())(AuditMiddleware(auditLog)(inner))

	req := httptest.NewRequest(http.MethodDelete, "/api/relationships/PRT-123456", nil)
	req.Header.Set("X-Request-ID", "req-1")
	req = req.WithContext(WithClaims(req.Context(), &auth.Claims{UserID: "u1"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Fatalf("expected request id echoed, got %q", rec.Header().Get("X-Request-ID"))
	}
	line := buf.String()
	for _, want := range []string{"action=disconnect", "resource_id=PRT-123456", "user_id=u1", "request_id=req-1", "status=ok"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in audit line %q", want, line)
		}
	}

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/locations/history?user=u2", nil))
	if !strings.Contains(buf.String(), "action=access_denied") {
		t.Fatalf("expected denied audit line, got %q", buf.String())
	}

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/partner/location", nil))
	if buf.Len() != 0 {
		t.Fatalf("expected no audit line for reads, got %q", buf.String())
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(claimsEcho())

	req := httptest.NewRequest(http.MethodOptions, "/api/profile", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Fatal("expected PATCH allowed")
	}
}

func TestRequireJSONFields(t *testing.T) {
	h := RequireJSONFields([]string{"code"}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/relationships", strings.NewReader(`{"code":"PRT-000001"}`)))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"code":"PRT-000001"}` {
		t.Fatalf("expected body passed through, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/relationships", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing field, got %d", rec.Code)
	}
}

func TestSanitizeInputs(t *testing.T) {
	h := SanitizeInputs(discardLogger())(claimsEcho())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/locations/history?user=%3Cscript%3E", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/locations/history?user=abc&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
