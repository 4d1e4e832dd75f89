package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
)

const issuer = "mirrors-qa-backend"

// Claims are the bearer token's JWT claims: iss, iat, exp, subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Service mints and validates bearer tokens signed with a shared HS256
// secret.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService constructs a Service for the given secret and token lifetime.
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{secret: []byte(secret), expiry: expiry}
}

// Mint issues a bearer token for workerID, returning the compact token and
// its lifetime in seconds.
func (s *Service) Mint(workerID string) (string, int64, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   workerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", 0, apperrors.Wrap(err, apperrors.InternalError, "failed to sign bearer token")
	}
	return signed, int64(s.expiry.Seconds()), nil
}

// Validate parses and verifies a bearer token, returning its claims.
// An expired token surfaces the literal message "Token has expired.";
// every other failure collapses to a generic Auth error.
func (s *Service) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.NewAuth("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.NewAuth("Token has expired.")
		}
		return nil, apperrors.NewAuth("invalid bearer token")
	}
	if claims.Subject == "" {
		return nil, apperrors.NewAuth("invalid bearer token")
	}
	return claims, nil
}
