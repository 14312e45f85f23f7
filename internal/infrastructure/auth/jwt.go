package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/buildless/buildcached/internal/application/ports"
)

// TokenIssuer signs and validates bearer tokens (HS256) carrying the
// principal's account scope. Implements ports.TokenVerifier.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
}

type accessClaims struct {
	jwt.RegisteredClaims
	// Scope is the canonical account scope ("user:<uid>" or
	// "tenant:<name>") the token acts for.
	Scope string `json:"scope"`
}

func NewTokenIssuer(secret []byte, issuer, audience string) *TokenIssuer {
	return &TokenIssuer{secret: secret, issuer: issuer, audience: audience}
}

// IssueAccessToken issues a token for userID acting in scope.
func (t *TokenIssuer) IssueAccessToken(scope, userID string, expiresInSeconds int64) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expiresInSeconds) * time.Second)),
		},
		Scope: scope,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateAccessToken parses and verifies a token, returning the scope and
// user id it carries.
func (t *TokenIssuer) ValidateAccessToken(tokenString string) (scope, userID string, err error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
	)
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", errors.New("invalid token")
	}
	if claims.Scope == "" {
		return "", "", errors.New("token missing scope claim")
	}
	return claims.Scope, claims.Subject, nil
}

var _ ports.TokenVerifier = (*TokenIssuer)(nil)
