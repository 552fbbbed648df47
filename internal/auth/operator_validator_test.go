package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "authshift-operator"

var testSigningSecret = []byte("test-signing-secret")

func newTestValidator(t *testing.T, clock func() time.Time) *OperatorValidator {
	t.Helper()
	validator, err := NewOperatorValidator(OperatorValidatorConfig{
		SigningSecret: testSigningSecret,
		Issuer:        testIssuer,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signedToken(t *testing.T, secret []byte, claims OperatorClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestNewOperatorValidatorRequiresSecretAndIssuer(t *testing.T) {
	if _, err := NewOperatorValidator(OperatorValidatorConfig{Issuer: testIssuer}); !errors.Is(err, ErrMissingOperatorSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
	if _, err := NewOperatorValidator(OperatorValidatorConfig{SigningSecret: testSigningSecret}); !errors.Is(err, ErrMissingOperatorIssuer) {
		t.Fatalf("expected missing issuer error, got %v", err)
	}
}

func TestValidateTokenAcceptsWellFormedToken(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, func() time.Time { return now })

	token := signedToken(t, testSigningSecret, OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	subject, err := validator.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "operator-1" {
		t.Fatalf("expected operator-1, got %s", subject)
	}
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, func() time.Time { return now })

	token := signedToken(t, testSigningSecret, OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	})

	if _, err := validator.ValidateToken(token); !errors.Is(err, ErrExpiredOperatorToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestValidateTokenRejectsWrongIssuer(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, func() time.Time { return now })

	token := signedToken(t, testSigningSecret, OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	if _, err := validator.ValidateToken(token); !errors.Is(err, ErrInvalidOperatorToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, func() time.Time { return now })

	token := signedToken(t, []byte("other-secret"), OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	if _, err := validator.ValidateToken(token); !errors.Is(err, ErrInvalidOperatorToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestValidateTokenRejectsMissingSubject(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	validator := newTestValidator(t, func() time.Time { return now })

	token := signedToken(t, testSigningSecret, OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	if _, err := validator.ValidateToken(token); !errors.Is(err, ErrMissingOperatorSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestValidateTokenRejectsEmptyToken(t *testing.T) {
	validator := newTestValidator(t, nil)
	if _, err := validator.ValidateToken("  "); !errors.Is(err, ErrMissingOperatorToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}
