package auth

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	mgr := NewJWTManager("test-signing-key", time.Minute)

	token, expiresAt, err := mgr.GenerateAccessToken("ci-bot", RoleEditor)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("expected future expiry")
	}

	principal, err := mgr.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if principal.Name != "ci-bot" {
		t.Errorf("Name = %q", principal.Name)
	}
	if principal.Role != RoleEditor {
		t.Errorf("Role = %q", principal.Role)
	}
	if principal.IsAPIKey {
		t.Error("JWT principal should not be flagged as API key")
	}
	if !principal.HasScope(ScopeRendersExecute) {
		t.Error("editor should hold renders:execute")
	}
}

func TestJWTRejectsWrongKey(t *testing.T) {
	mgr := NewJWTManager("key-one", time.Minute)
	token, _, err := mgr.GenerateAccessToken("ci-bot", RoleViewer)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	other := NewJWTManager("key-two", time.Minute)
	if _, err := other.ValidateAccessToken(token); err == nil {
		t.Error("expected validation failure with wrong signing key")
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	mgr := NewJWTManager("test-signing-key", -time.Minute)
	token, _, err := mgr.GenerateAccessToken("ci-bot", RoleViewer)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := mgr.ValidateAccessToken(token); err == nil {
		t.Error("expected validation failure for expired token")
	}
}

func TestJWTRejectsGarbage(t *testing.T) {
	mgr := NewJWTManager("test-signing-key", time.Minute)
	if _, err := mgr.ValidateAccessToken("not.a.token"); err == nil {
		t.Error("expected validation failure for garbage token")
	}
}

func TestExtractBearerToken(t *testing.T) {
	token, err := ExtractBearerToken("Bearer abc123")
	if err != nil {
		t.Fatalf("ExtractBearerToken failed: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %q", token)
	}

	for _, header := range []string{"", "abc123", "Basic abc123", "Bearer"} {
		if _, err := ExtractBearerToken(header); err == nil {
			t.Errorf("expected error for header %q", header)
		}
	}
}

func TestKeyVerifier(t *testing.T) {
	hash, err := HashAPIKey("sk-reportd-test")
	if err != nil {
		t.Fatalf("HashAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("expected bcrypt hash, got %q", hash)
	}

	v := NewKeyVerifier([]string{hash})
	if !v.Enabled() {
		t.Error("verifier with hashes should be enabled")
	}
	if !v.Verify("sk-reportd-test") {
		t.Error("expected key to verify")
	}
	if v.Verify("sk-reportd-wrong") {
		t.Error("wrong key verified")
	}
	if v.Verify("") {
		t.Error("empty key verified")
	}
}

func TestKeyVerifierEmpty(t *testing.T) {
	v := NewKeyVerifier(nil)
	if v.Enabled() {
		t.Error("empty verifier should be disabled")
	}
	if v.Verify("anything") {
		t.Error("empty verifier accepted a key")
	}
}

func TestHashAPIKeyEmpty(t *testing.T) {
	if _, err := HashAPIKey(""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestScopesForRole(t *testing.T) {
	admin := ScopesForRole(RoleAdmin)
	if len(admin) == 0 {
		t.Fatal("admin scopes empty")
	}

	viewer := &Principal{Role: RoleViewer, Scopes: ScopesForRole(RoleViewer)}
	if viewer.HasScope(ScopeReportsWrite) {
		t.Error("viewer should not hold reports:write")
	}
	if !viewer.HasScope(ScopeReportsRead) {
		t.Error("viewer should hold reports:read")
	}
}

func TestPrincipalContext(t *testing.T) {
	p := &Principal{Name: "ops", Role: RoleAdmin}
	ctx := WithPrincipal(context.Background(), p)

	got, ok := PrincipalFromContext(ctx)
	if !ok || got.Name != "ops" {
		t.Errorf("PrincipalFromContext = %+v, ok=%v", got, ok)
	}

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Error("empty context should hold no principal")
	}

	var nilPrincipal *Principal
	if nilPrincipal.HasScope(ScopeReportsRead) {
		t.Error("nil principal should hold no scopes")
	}
}
