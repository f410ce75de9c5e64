package auth

import (
	"context"
	"strings"

	domain "github.com/artfolio/exchange/internal/domain"
)

// Role constants used throughout the API when checking authorisation boundaries.
const (
	RoleUser    = "user"
	RolePartner = "partner"
	RoleAdmin   = "admin"
)

// Identity captures the authenticated principal extracted from a bearer token.
type Identity struct {
	SubjectID string
	PartyType domain.PartyType
	Email     string
	Roles     []string
}

// Party renders the identity as the domain participant reference used by the
// order services.
func (i *Identity) Party() domain.Party {
	if i == nil {
		return domain.Party{}
	}
	return domain.Party{ID: i.SubjectID, Type: i.PartyType}
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity includes at least one of the given roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type contextKey string

const identityContextKey contextKey = "github.com/artfolio/exchange/internal/platform/auth/identity"

// WithIdentity stores the identity on the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity stored by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
