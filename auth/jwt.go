package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the admin session identity inside the JWT.
type Claims struct {
	Subject string `json:"sub_name"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates admin session tokens.
type JWTManager struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTManager creates a manager with the given signing secret and token
// lifetime in days.
func NewJWTManager(secret string, expirationDays int) *JWTManager {
	if expirationDays <= 0 {
		expirationDays = 7
	}
	return &JWTManager{
		secret:     []byte(secret),
		expiration: time.Duration(expirationDays) * 24 * time.Hour,
	}
}

// GenerateToken creates a signed token for an authenticated admin.
func (m *JWTManager) GenerateToken(subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject: subject,
		IsAdmin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token, returning its claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
