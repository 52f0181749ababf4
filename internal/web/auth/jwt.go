// Package auth issues and verifies the HS256 bearer tokens that guard the
// admin endpoints.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role required by the admin endpoints
const RoleAdmin = "admin"

// ErrNoSecret is returned when tokens are issued or checked without a secret
var ErrNoSecret = errors.New("admin jwt secret is not configured")

// Claims are the token claims
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry role
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// AuthService provides JWT token generation and validation
type AuthService struct {
	secretKey []byte
	issuer    string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewAuthService creates an AuthService signing with secretKey
func NewAuthService(secretKey, issuer string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// Enabled reports whether a secret is configured
func (s *AuthService) Enabled() bool {
	return len(s.secretKey) > 0
}

// GenerateToken signs a token for subject with the given roles
func (s *AuthService) GenerateToken(subject string, roles []string) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}
	now := s.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken verifies the signature, expiry and issuer of a token and
// returns its claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrNoSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
