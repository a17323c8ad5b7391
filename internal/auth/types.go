// Package auth is the authorization gate in front of the mutation API.
// Callers authenticate with an HS256 bearer token or a static API key, and
// only the operator role may mutate special events.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a caller's role.
type Role string

const (
	// RoleOperator may create, update and delete special events.
	RoleOperator Role = "operator"
	// RoleViewer may only read.
	RoleViewer Role = "viewer"
)

// Method is how a principal authenticated.
type Method string

const (
	MethodToken  Method = "token"
	MethodAPIKey Method = "api_key"
	MethodNone   Method = "none"
)

// Principal is an authenticated caller.
type Principal struct {
	Subject string
	Role    Role
	Method  Method
}

// Claims are the token claims the gate issues and accepts.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Config configures the gate.
type Config struct {
	// Disabled lets every caller through as an anonymous operator.
	Disabled bool

	// Secret signs and verifies HS256 tokens. Empty disables tokens.
	Secret string

	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// APIKey is a static operator key. Empty disables API keys.
	APIKey string

	// APIKeyHeader is the header carrying the API key.
	APIKeyHeader string

	// Leeway tolerates clock skew on exp and iat.
	Leeway time.Duration
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		Issuer:       "neowatch",
		APIKeyHeader: "X-API-Key",
		Leeway:       30 * time.Second,
	}
}

type contextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
