package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agentstation/neowatch/pkg/errors"
)

// Issuer mints tokens the gate accepts.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewIssuer creates an issuer signing with secret.
func NewIssuer(secret, issuer string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.NewConfigError("auth", "a token secret is required to issue tokens", nil)
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for subject with role, valid for ttl.
func (i *Issuer) Issue(subject string, role Role, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.NewValidationError("subject", subject, "must not be empty")
	}
	if ttl <= 0 {
		return "", errors.NewValidationError("ttl", ttl.String(), "must be positive")
	}

	now := i.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
