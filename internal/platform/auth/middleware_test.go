package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domain "github.com/artfolio/exchange/internal/domain"
)

const testSecret = "unit-test-secret"

var authTestNow = time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestAuthenticator(t *testing.T, opts ...Option) *Authenticator {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return authTestNow }))
	authn, err := NewAuthenticator(testSecret, opts...)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return authn
}

func TestVerifyExtractsIdentity(t *testing.T) {
	authn := newTestAuthenticator(t, WithIssuer("https://auth.example.com"), WithAudience("exchange"))

	raw := signToken(t, jwt.MapClaims{
		"sub":       "partner-1",
		"iss":       "https://auth.example.com",
		"aud":       "exchange",
		"exp":       authTestNow.Add(time.Hour).Unix(),
		"partyType": "partner",
		"email":     "gallery@example.com",
		"roles":     []string{"Partner", "admin", "partner"},
	})

	identity, err := authn.Verify(raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.SubjectID != "partner-1" {
		t.Fatalf("unexpected subject %s", identity.SubjectID)
	}
	if identity.PartyType != domain.PartyTypePartner {
		t.Fatalf("unexpected party type %s", identity.PartyType)
	}
	if identity.Email != "gallery@example.com" {
		t.Fatalf("unexpected email %s", identity.Email)
	}
	if len(identity.Roles) != 2 || identity.Roles[0] != "partner" || identity.Roles[1] != "admin" {
		t.Fatalf("unexpected roles %v", identity.Roles)
	}
	party := identity.Party()
	if party.ID != "partner-1" || party.Type != domain.PartyTypePartner {
		t.Fatalf("unexpected party %+v", party)
	}
}

func TestVerifyDefaultsPartyTypeAndRole(t *testing.T) {
	authn := newTestAuthenticator(t)

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": authTestNow.Add(time.Hour).Unix(),
	})

	identity, err := authn.Verify(raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.PartyType != domain.PartyTypeUser {
		t.Fatalf("expected user party type, got %s", identity.PartyType)
	}
	if len(identity.Roles) != 1 || identity.Roles[0] != RoleUser {
		t.Fatalf("expected fallback role, got %v", identity.Roles)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	authn := newTestAuthenticator(t)

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": authTestNow.Add(-time.Hour).Unix(),
	})

	if _, err := authn.Verify(raw); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	authn := newTestAuthenticator(t, WithIssuer("https://auth.example.com"))

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://evil.example.com",
		"exp": authTestNow.Add(time.Hour).Unix(),
	})

	if _, err := authn.Verify(raw); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	authn := newTestAuthenticator(t)

	raw := signToken(t, jwt.MapClaims{
		"exp": authTestNow.Add(time.Hour).Unix(),
	})

	if _, err := authn.Verify(raw); err == nil {
		t.Fatal("expected missing subject error")
	}
}

func TestRequireAuthAttachesIdentity(t *testing.T) {
	authn := newTestAuthenticator(t)

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": authTestNow.Add(time.Hour).Unix(),
	})

	var seen *Identity
	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if seen == nil || seen.SubjectID != "user-1" {
		t.Fatalf("expected identity on context, got %+v", seen)
	}
}

func TestRequireAuthMissingHeader(t *testing.T) {
	authn := newTestAuthenticator(t)

	handler := authn.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthEnforcesRoles(t *testing.T) {
	authn := newTestAuthenticator(t)

	raw := signToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"exp":   authTestNow.Add(time.Hour).Unix(),
		"roles": []string{"user"},
	})

	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
