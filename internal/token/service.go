// Package token implements the Mesh's C2 Token Service: symmetric,
// expiring session tokens, grounded on xarvis's JWT usage
// (internal/domains/user/service.go — RegisteredClaims + HS256 sign/parse).
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rapidaai/mesh/internal/commons"
)

var (
	// ErrInvalidToken is returned for malformed tokens, bad signatures,
	// or a nil/invalid claims set.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrExpired is returned when the token's exp claim has passed.
	ErrExpired = errors.New("token: expired")
)

// Claims is what Issue/Verify exchange: a session subject plus scopes.
type Claims struct {
	Subject string
	Scopes  []string
	Expiry  time.Time
}

// Service is the C2 contract.
type Service interface {
	Issue(subject string, scopes []string, ttl time.Duration) (string, error)
	Verify(tokenString string) (Claims, error)
}

type jwtClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

type jwtService struct {
	secret    []byte
	algorithm string
	logger    commons.Logger
}

// New builds a Token Service. A placeholder secret is logged as a
// critical startup warning but the service still operates, per spec.md
// §4.2 ("must be present and non-placeholder; a placeholder value must
// be logged as critical at startup and still operate but clearly flagged").
func New(secret string, isPlaceholder bool, logger commons.Logger) Service {
	if isPlaceholder {
		logger.Errorf("SECURITY: JWT secret is a placeholder value — tokens are NOT safe for production use")
	}
	return &jwtService{secret: []byte(secret), algorithm: "HS256", logger: logger}
}

func (s *jwtService) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

func (s *jwtService) Verify(tokenString string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		Subject: claims.Subject,
		Scopes:  claims.Scopes,
		Expiry:  claims.ExpiresAt.Time,
	}, nil
}
