package middleware

import (
	"net/http"
	"os"

	"go.uber.org/zap"

	authpkg "github.com/clearcite/reportd/internal/auth"
)

// AuthMiddleware authenticates requests via API key or bearer token
type AuthMiddleware struct {
	verifier *authpkg.KeyVerifier
	jwt      *authpkg.JWTManager
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier *authpkg.KeyVerifier, jwt *authpkg.JWTManager, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		jwt:      jwt,
		logger:   logger,
	}
}

// Middleware returns the HTTP middleware function
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check if auth should be skipped (development only)
		if os.Getenv("REPORTD_SKIP_AUTH") == "1" {
			principal := &authpkg.Principal{
				Name:      "dev",
				Role:      authpkg.RoleAdmin,
				Scopes:    authpkg.ScopesForRole(authpkg.RoleAdmin),
				IsAPIKey:  true,
				TokenType: "api_key",
			}
			m.logger.Debug("Auth skipped (REPORTD_SKIP_AUTH=1)",
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(authpkg.WithPrincipal(r.Context(), principal)))
			return
		}

		// Bearer tokens first: a JWT carries its own role and scopes
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			token, err := authpkg.ExtractBearerToken(authHeader)
			if err != nil {
				m.sendUnauthorized(w, "Invalid authorization header")
				return
			}
			principal, err := m.jwt.ValidateAccessToken(token)
			if err != nil {
				m.logger.Debug("Bearer token validation failed", zap.Error(err))
				m.sendUnauthorized(w, "Invalid bearer token")
				return
			}
			m.logger.Debug("Request authenticated",
				zap.String("principal", principal.Name),
				zap.String("token_type", principal.TokenType),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(authpkg.WithPrincipal(r.Context(), principal)))
			return
		}

		// Fall back to API key (header, or query param for websockets)
		apiKey := m.extractAPIKey(r)
		if apiKey == "" {
			m.sendUnauthorized(w, "API key is required")
			return
		}
		if !m.verifier.Verify(apiKey) {
			m.logger.Debug("API key validation failed",
				zap.String("api_key_prefix", keyPrefix(apiKey)),
			)
			m.sendUnauthorized(w, "Invalid API key")
			return
		}

		principal := &authpkg.Principal{
			Name:      "api-key",
			Role:      authpkg.RoleEditor,
			Scopes:    authpkg.ScopesForRole(authpkg.RoleEditor),
			IsAPIKey:  true,
			TokenType: "api_key",
		}
		next.ServeHTTP(w, r.WithContext(authpkg.WithPrincipal(r.Context(), principal)))
	})
}

// RequireScope rejects authenticated requests lacking the given scope
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := authpkg.PrincipalFromContext(r.Context())
			if !ok || !principal.HasScope(scope) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"Insufficient scope"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKey extracts the API key from the request
func (m *AuthMiddleware) extractAPIKey(r *http.Request) string {
	// Check X-API-Key header
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}

	// Check api_key query parameter (browsers cannot set headers on websockets)
	if apiKey := r.URL.Query().Get("api_key"); apiKey != "" {
		return apiKey
	}

	return ""
}

// keyPrefix returns the first few characters of the API key for logging
func keyPrefix(apiKey string) string {
	if len(apiKey) > 8 {
		return apiKey[:8] + "..."
	}
	return "***"
}

// sendUnauthorized sends an unauthorized response
func (m *AuthMiddleware) sendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="reportd API"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
