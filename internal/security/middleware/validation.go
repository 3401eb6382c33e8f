package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

const maxBodyBytes = 1 << 20

// markup and quoting characters never appear in codes, ids or limits
var suspiciousQueryChars = []string{"<", ">", "\"", "'"}

// skipQueryCheck names query parameters carrying opaque values
var skipQueryCheck = map[string]bool{"token": true}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	default:
		return false
	}
}

// ValidateJSONContentType rejects write requests whose body is not JSON.
// Bodyless writes (sign out, code regeneration) pass.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if !strings.Contains(contentType, "application/json") {
				log.Warn("invalid content type",
					slog.String("path", r.URL.Path),
					slog.String("content_type", contentType),
					slog.String("method", r.Method),
				)
				reject(w, http.StatusUnsupportedMediaType, domain.ErrInvalidInput)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSONFields checks that the JSON object body carries every named field.
// The body is restored so the handler can decode it again.
func RequireJSONFields(fields []string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				reject(w, http.StatusBadRequest, domain.ErrInvalidInput)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var payload map[string]json.RawMessage
			if err := json.Unmarshal(body, &payload); err != nil {
				log.Warn("invalid json payload",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				reject(w, http.StatusBadRequest, domain.ErrInvalidInput)
				return
			}

			for _, field := range fields {
				if _, ok := payload[field]; ok {
					continue
				}
				log.Warn("missing required field",
					slog.String("path", r.URL.Path),
					slog.String("field", field),
				)
				rejectBody(w, http.StatusBadRequest, errorBody{
					Code:    domain.ErrorCode(domain.ErrInvalidInput),
					Message: fmt.Sprintf("Campo obrigatório ausente: %s", field),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SanitizeInputs rejects query values carrying markup and paths carrying
// traversal patterns
func SanitizeInputs(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("suspicious path pattern detected", slog.String("path", r.URL.Path))
				reject(w, http.StatusBadRequest, domain.ErrInvalidInput)
				return
			}

			for key, values := range r.URL.Query() {
				if skipQueryCheck[key] {
					continue
				}
				for _, val := range values {
					if char, found := firstSuspicious(val); found {
						log.Warn("suspicious input detected",
							slog.String("path", r.URL.Path),
							slog.String("param", key),
							slog.String("pattern", char),
						)
						reject(w, http.StatusBadRequest, domain.ErrInvalidInput)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func firstSuspicious(val string) (string, bool) {
	for _, char := range suspiciousQueryChars {
		if strings.Contains(val, char) {
			return char, true
		}
	}
	return "", false
}
