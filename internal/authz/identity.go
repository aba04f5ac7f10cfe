package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	Subject string
	Roles   []Role
}

// Can reports whether the identity holds capability c.
func (i Identity) Can(c Capability) bool {
	return AnyHasCapability(i.Roles, c)
}

type ctxKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Claims is the token shape issued by the login service upstream.
type Claims struct {
	jwt.RegisteredClaims

	License string   `json:"license"`
	Roles   []string `json:"roles"`
}

// Verifier validates HS256 bearer tokens. It never issues tokens.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}, nil
}

// Verify parses token and returns the caller identity.
func (v *Verifier) Verify(token string, now time.Time) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	roles := ParseRoles(claims.Roles)
	if len(roles) == 0 {
		return Identity{}, errors.New("token carries no known role")
	}

	subject := claims.Subject
	if subject == "" {
		subject = claims.License
	}
	return Identity{Subject: subject, Roles: roles}, nil
}
