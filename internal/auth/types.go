package auth

import "context"

// ContextKey is the key type for context values
type ContextKey string

// PrincipalContextKey is the context key for the authenticated caller
const PrincipalContextKey ContextKey = "principal"

// Roles ordered by capability
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// Scopes gate individual API surfaces
const (
	ScopeRendersExecute = "renders:execute"
	ScopeReportsRead    = "reports:read"
	ScopeReportsWrite   = "reports:write"
	ScopeExportsRead    = "exports:read"
)

// Principal identifies an authenticated caller: either an API key or a
// bearer of a token minted from one.
type Principal struct {
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Scopes    []string `json:"scopes"`
	IsAPIKey  bool     `json:"is_api_key"`
	TokenType string   `json:"token_type"` // "jwt" or "api_key"
}

// HasScope reports whether the principal carries the given scope
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// WithPrincipal attaches the principal to the context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// PrincipalFromContext extracts the principal, if any
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*Principal)
	return p, ok
}

// ScopesForRole returns the default scopes for a given role
func ScopesForRole(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			ScopeRendersExecute,
			ScopeReportsRead, ScopeReportsWrite,
			ScopeExportsRead,
		}
	case RoleEditor:
		return []string{
			ScopeRendersExecute,
			ScopeReportsRead, ScopeReportsWrite,
			ScopeExportsRead,
		}
	default: // RoleViewer
		return []string{
			ScopeReportsRead,
			ScopeExportsRead,
		}
	}
}
