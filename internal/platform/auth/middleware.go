package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domain "github.com/artfolio/exchange/internal/domain"
)

const (
	defaultRoleClaim      = "roles"
	defaultPartyTypeClaim = "partyType"
	defaultEmailClaim     = "email"
	defaultFallbackRole   = RoleUser
	defaultClockSkew      = 30 * time.Second
)

// ErrTokenExpired indicates the bearer token's expiry has passed.
var ErrTokenExpired = errors.New("auth: token expired")

// ErrTokenInvalid indicates the bearer token failed signature or claim checks.
var ErrTokenInvalid = errors.New("auth: token invalid")

// Authenticator verifies HS256-signed bearer tokens and attaches the decoded
// identity to the request context.
type Authenticator struct {
	secret         []byte
	issuer         string
	audience       string
	roleClaim      string
	partyTypeClaim string
	emailClaim     string
	fallbackRole   string
	skew           time.Duration
	clock          func() time.Time
}

// Option customises the authenticator.
type Option func(*Authenticator)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) {
		a.issuer = strings.TrimSpace(issuer)
	}
}

// WithAudience requires the aud claim to contain the value.
func WithAudience(audience string) Option {
	return func(a *Authenticator) {
		a.audience = strings.TrimSpace(audience)
	}
}

// WithRoleClaim overrides the claim key roles are read from.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithFallbackRole sets the role assigned when the token carries none.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		a.fallbackRole = strings.ToLower(strings.TrimSpace(role))
	}
}

// WithClock injects the time source used for expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(a *Authenticator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// NewAuthenticator constructs an authenticator over the shared signing secret.
func NewAuthenticator(secret string, opts ...Option) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	a := &Authenticator{
		secret:         []byte(secret),
		roleClaim:      defaultRoleClaim,
		partyTypeClaim: defaultPartyTypeClaim,
		emailClaim:     defaultEmailClaim,
		fallbackRole:   defaultFallbackRole,
		skew:           defaultClockSkew,
		clock:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Verify parses and validates the raw token, returning the identity.
func (a *Authenticator) Verify(raw string) (*Identity, error) {
	if a == nil || len(a.secret) == 0 {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return a.clock().Add(-a.skew) }),
	)

	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if a.issuer != "" {
		issuer, _ := claims.GetIssuer()
		if issuer != a.issuer {
			return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
		}
	}
	if a.audience != "" {
		audience, _ := claims.GetAudience()
		matched := false
		for _, aud := range audience {
			if aud == a.audience {
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: unexpected audience", ErrTokenInvalid)
		}
	}

	subject, _ := claims["sub"].(string)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	partyType, ok := domain.ParsePartyType(claimAsString(claims, a.partyTypeClaim))
	if !ok {
		partyType = domain.PartyTypeUser
	}

	identity := &Identity{
		SubjectID: subject,
		PartyType: partyType,
		Email:     claimAsString(claims, a.emailClaim),
		Roles:     rolesFromClaims(claims, a.roleClaim),
	}
	if len(identity.Roles) == 0 && a.fallbackRole != "" {
		identity.Roles = []string{a.fallbackRole}
	}
	return identity, nil
}

// RequireAuth verifies the Authorization bearer token and, when allowedRoles
// is non-empty, ensures the identity carries at least one of them.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			identity, err := a.Verify(tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(role))]; ok {
			return true
		}
	}
	return false
}

func rolesFromClaims(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key]
	if !ok {
		return nil
	}

	appendRole := func(roles []string, value string) []string {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			return roles
		}
		for _, existing := range roles {
			if existing == value {
				return roles
			}
		}
		return append(roles, value)
	}

	var roles []string
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			roles = appendRole(roles, part)
		}
	case []string:
		for _, part := range v {
			roles = appendRole(roles, part)
		}
	case []any:
		for _, part := range v {
			if str, ok := part.(string); ok {
				roles = appendRole(roles, str)
			}
		}
	}
	return roles
}

func claimAsString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok {
		return ""
	}
	if str, ok := raw.(string); ok {
		return strings.TrimSpace(str)
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "bearer token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "bearer token invalid")
	}
}
