package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/audit"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/auth"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security/ratelimit"
)

type ClaimsContextKey struct{}

// StreamPath accepts its token as a query parameter because browsers cannot
// set headers on websocket upgrades
const StreamPath = "/ws/locations"

// Authenticator validates a bearer token, including revocation
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

var publicPaths = map[string]bool{
	"/healthz":                         true,
	"/readyz":                          true,
	"/metrics":                         true,
	"/api/auth/signup":                 true,
	"/api/auth/signin":                 true,
	"/api/auth/reset-password":         true,
	"/api/auth/reset-password/confirm": true,
}

// IsPublic reports whether path is served without a bearer token
func IsPublic(path string) bool {
	return publicPaths[path]
}

func isAuthPath(path string) bool {
	return strings.HasPrefix(path, "/api/auth/")
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var rateLimited = errorBody{Code: "rate_limited", Message: "Muitas tentativas. Aguarde um momento."}

func reject(w http.ResponseWriter, status int, err error) {
	rejectBody(w, status, errorBody{Code: domain.ErrorCode(err), Message: domain.UserMessage(err)})
}

func rejectBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func JWTMiddleware(authn Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublic(r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			var tokenString string
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				t, err := auth.ExtractToken(authHeader)
				if err != nil {
					reject(w, http.StatusUnauthorized, domain.ErrInvalidCredentials)
					return
				}
				tokenString = t
			} else if r.URL.Path == StreamPath {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				reject(w, http.StatusUnauthorized, domain.ErrInvalidCredentials)
				return
			}

			claims, err := authn.Authenticate(r.Context(), tokenString)
			if err != nil {
				log.Debug("rejected bearer token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				reject(w, http.StatusUnauthorized, domain.ErrInvalidCredentials)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware limits authenticated callers per identity and auth
// endpoints per client address. It must run inside JWTMiddleware.
func RateLimitMiddleware(limiter *ratelimit.Limiter, authPerMinute int, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			if isAuthPath(r.URL.Path) && authPerMinute > 0 {
				ip := clientIP(r)
				if !limiter.AllowStrict(ip, authPerMinute, time.Minute) {
					log.Warn("auth rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
					rejectBody(w, http.StatusTooManyRequests, rateLimited)
					return
				}
			}

			if claims := GetClaimsFromContext(r.Context()); claims != nil && !limiter.Allow(claims.UserID) {
				log.Warn("rate limit exceeded", slog.String("user_id", claims.UserID))
				rejectBody(w, http.StatusTooManyRequests, rateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// AuditMiddleware writes an audit line for every relationship change, code
// regeneration and forbidden request. It must run inside JWTMiddleware.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == StreamPath {
				next.ServeHTTP(w, r)
				return
			}

			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r)

			userID := ""
			if claims := GetClaimsFromContext(r.Context()); claims != nil {
				userID = claims.UserID
			}
			status := "ok"
			if aw.status >= 400 {
				status = fmt.Sprintf("failed_%d", aw.status)
			}

			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/api/relationships":
				auditLog.LogConnect(r.Context(), userID, "", status)
			case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/relationships/"):
				auditLog.LogDisconnect(r.Context(), userID, strings.TrimPrefix(r.URL.Path, "/api/relationships/"), status)
			case r.Method == http.MethodPost && r.URL.Path == "/api/profile/code":
				auditLog.LogAction(r.Context(), userID, "regenerate_code", "profile", userID, status, "")
			case aw.status == http.StatusForbidden:
				auditLog.LogDenied(r.Context(), userID, r.Method+" "+r.URL.Path)
			}
		})
	}
}

// RequestID attaches a request id to the context and response headers and
// logs each completed request
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = generateRequestID()
			}
			w.Header().Set("X-Request-ID", reqID)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(audit.WithRequestID(r.Context(), reqID)))

			log.Debug("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration_ms", time.Since(start)),
			)
		})
	}
}

// CORS honours the configured origins; "*" allows any origin
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if OriginAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else if len(allowed) > 0 {
				w.Header().Set("Access-Control-Allow-Origin", allowed[0])
			}
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(ClaimsContextKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}

// WithClaims returns a copy of ctx carrying claims
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey{}, claims)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
