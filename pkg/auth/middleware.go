package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware authenticates requests with a bearer token.
type Middleware struct {
	validator TokenValidator
	required  bool
	logger    *zap.Logger
}

// NewMiddleware creates an auth middleware. When required is false,
// requests without a token pass through anonymously; a token that is
// present must still parse.
func NewMiddleware(validator TokenValidator, required bool, logger *zap.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		required:  required,
		logger:    logger.Named("auth"),
	}
}

// RequireAuth validates the bearer token and stores its claims in the
// request context. Failures get RFC 6750 WWW-Authenticate responses.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			if !m.required {
				next.ServeHTTP(w, r)
				return
			}
			m.writeError(w, http.StatusUnauthorized, "invalid_request", "Missing bearer token")
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			m.logger.Debug("Auth failed: invalid token",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			m.writeError(w, http.StatusUnauthorized, "invalid_token", "The access token is invalid or expired")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeError writes an RFC 6750 Bearer token error response with a JSON body.
func (m *Middleware) writeError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+description+`"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": description,
	})
}
