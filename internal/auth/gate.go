package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentstation/neowatch/pkg/errors"
)

// Gate authenticates callers and authorizes mutations.
type Gate struct {
	config Config
	now    func() time.Time
}

// NewGate creates a gate. With neither a secret nor an API key configured,
// and the gate not disabled, every mutation is denied.
func NewGate(cfg Config) *Gate {
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = DefaultConfig().APIKeyHeader
	}
	return &Gate{config: cfg, now: time.Now}
}

// Check authenticates the request and requires the operator role.
func (g *Gate) Check(r *http.Request) (Principal, error) {
	p, err := g.Authenticate(r)
	if err != nil {
		return Principal{}, err
	}
	if err := g.Authorize(p); err != nil {
		return p, err
	}
	return p, nil
}

// Authenticate identifies the caller. Failures are access-denied errors
// with Authenticated false.
func (g *Gate) Authenticate(r *http.Request) (Principal, error) {
	if g.config.Disabled {
		return Principal{Subject: "anonymous", Role: RoleOperator, Method: MethodNone}, nil
	}
	if g.config.Secret == "" && g.config.APIKey == "" {
		return Principal{}, errors.NewAccessDeniedError("", "no credentials are configured on this server", false, nil)
	}

	if key := r.Header.Get(g.config.APIKeyHeader); key != "" {
		return g.checkAPIKey(key)
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return Principal{}, errors.NewAccessDeniedError("", "missing bearer token", false, nil)
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Principal{}, errors.NewAccessDeniedError("", "authorization header must use the Bearer scheme", false, nil)
	}

	// A bearer value that is not a JWT may be the API key.
	if strings.Count(token, ".") != 2 && g.config.APIKey != "" {
		return g.checkAPIKey(token)
	}
	return g.ParseToken(token)
}

// Authorize requires the operator role.
func (g *Gate) Authorize(p Principal) error {
	if p.Role != RoleOperator {
		return errors.NewAccessDeniedError(p.Subject, "operator role required", true, nil)
	}
	return nil
}

// ParseToken verifies a signed token and returns its principal.
func (g *Gate) ParseToken(token string) (Principal, error) {
	if g.config.Secret == "" {
		return Principal{}, errors.NewAccessDeniedError("", "bearer tokens are not accepted", false, nil)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(g.config.Leeway),
		jwt.WithTimeFunc(g.now),
	}
	if g.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.config.Issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(g.config.Secret), nil
	}, opts...)
	if err != nil {
		return Principal{}, errors.NewAccessDeniedError("", "invalid token", false, err)
	}
	if claims.Subject == "" {
		return Principal{}, errors.NewAccessDeniedError("", "token has no subject", false, nil)
	}
	return Principal{Subject: claims.Subject, Role: claims.Role, Method: MethodToken}, nil
}

func (g *Gate) checkAPIKey(key string) (Principal, error) {
	if g.config.APIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(g.config.APIKey)) != 1 {
		return Principal{}, errors.NewAccessDeniedError("", "invalid API key", false, nil)
	}
	return Principal{Subject: "api-key", Role: RoleOperator, Method: MethodAPIKey}, nil
}
