package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clearcite/reportd/internal/auth"
)

// TokenHandler exchanges an authenticated API key for a short-lived JWT
type TokenHandler struct {
	jwt    *auth.JWTManager
	logger *zap.Logger
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(jwt *auth.JWTManager, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{jwt: jwt, logger: logger}
}

// TokenRequest optionally narrows the minted token's role
type TokenRequest struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// TokenResponse carries the minted access token
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IssueToken handles POST /api/v1/auth/token. The auth middleware has
// already verified the caller; only API keys may mint tokens.
func (h *TokenHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !principal.IsAPIKey {
		h.sendError(w, "Tokens can only be minted with an API key", http.StatusForbidden)
		return
	}

	var req TokenRequest
	if r.Body != nil {
		// Body is optional; ignore decode errors from an empty body.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	name := req.Name
	if name == "" {
		name = principal.Name
	}

	// Minted tokens never exceed the key's own role.
	role := principal.Role
	if req.Role == auth.RoleViewer {
		role = auth.RoleViewer
	}

	token, expiresAt, err := h.jwt.GenerateAccessToken(name, role)
	if err != nil {
		h.logger.Error("Failed to mint token", zap.Error(err))
		h.sendError(w, "Failed to mint token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Access token minted",
		zap.String("name", name),
		zap.String("role", role),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
		ExpiresAt:   expiresAt,
	})
}

func (h *TokenHandler) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
