package security

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer signs and verifies operator tokens (HS256).
type TokenIssuer struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{auth: jwtauth.New("HS256", secret, nil), ttl: ttl}
}

// JWTAuth exposes the verifier for jwtauth.Verifier.
func (i *TokenIssuer) JWTAuth() *jwtauth.JWTAuth {
	return i.auth
}

func (i *TokenIssuer) GenerateToken(userID, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     now.Add(i.ttl).Unix(),
		"iat":     now.Unix(),
	}
	_, tokenString, err := i.auth.Encode(claims)
	return tokenString, err
}

// Helper functions to extract claims, can be used in middleware or services
func GetUserIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

func GetUserRoleFromClaims(claims jwt.MapClaims) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}
