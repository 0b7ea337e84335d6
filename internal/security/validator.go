// Package security validates bearer tokens issued by the external identity
// provider. The service never authenticates users itself; it trusts the
// identity the validated token carries.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails
	// signature, issuer, or audience checks.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds the JWT claims the service consumes.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id"`
}

// Identity is the authenticated caller derived from a valid token.
type Identity struct {
	// Actor is the subject claim: the identity provider's user ID.
	Actor string
	// OrgID is the organization the caller acts for; all row access is scoped to it.
	OrgID string
}

// Validator validates HS256 bearer tokens. It is stateless; construct one at
// process start and pass it explicitly wherever needed.
type Validator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewValidator returns a Validator for the given shared secret, issuer, and audience.
func NewValidator(secret, issuer, audience string) *Validator {
	return &Validator{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Validate parses and verifies the token string and returns the caller identity.
// Returns ErrInvalidToken on any verification failure.
func (v *Validator) Validate(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.OrgID == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{Actor: claims.Subject, OrgID: claims.OrgID}, nil
}

// Issue signs a token for the given subject and org. Used by cmd/seed and tests;
// production tokens come from the identity provider.
func (v *Validator) Issue(subject, orgID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		OrgID: orgID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
