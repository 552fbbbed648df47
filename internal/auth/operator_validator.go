package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingOperatorSigningKey = errors.New("operator validator: signing key required")
	ErrMissingOperatorIssuer     = errors.New("operator validator: issuer required")
	ErrMissingOperatorToken      = errors.New("operator validator: token required")
	ErrInvalidOperatorToken      = errors.New("operator validator: invalid token")
	ErrExpiredOperatorToken      = errors.New("operator validator: token expired")
	ErrMissingOperatorSubject    = errors.New("operator validator: subject required")
)

// OperatorClaims is the JWT payload accepted on the migration control surface.
type OperatorClaims struct {
	jwt.RegisteredClaims
}

// OperatorValidatorConfig describes how operator-issued JWTs are validated.
type OperatorValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	Clock         func() time.Time
}

// OperatorValidator validates HS256 bearer tokens presented to the control
// endpoints. The migration engine never issues tokens itself; operators mint
// them out of band with the shared secret.
type OperatorValidator struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time
}

// NewOperatorValidator constructs a validator with the provided configuration.
func NewOperatorValidator(cfg OperatorValidatorConfig) (*OperatorValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingOperatorSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingOperatorIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &OperatorValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		clock:         clock,
	}, nil
}

// ValidateToken validates the supplied JWT string and returns the operator
// subject it names.
func (v *OperatorValidator) ValidateToken(tokenString string) (string, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return "", ErrMissingOperatorToken
	}

	claims := &OperatorClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidOperatorToken, t.Method.Alg())
			}
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredOperatorToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidOperatorToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return "", ErrInvalidOperatorToken
	}
	if claims.Issuer != v.issuer {
		return "", ErrInvalidOperatorToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrMissingOperatorSubject
	}
	return subject, nil
}
