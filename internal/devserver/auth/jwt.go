// Package auth issues and validates the signed tokens of the development
// server. Two token purposes exist: "signin" tokens cover a pending sign-in
// attempt, "session" tokens cover an authenticated session.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vmarchenko/signon/internal/common"
)

// Token purposes.
const (
	PurposeSignIn  = "signin"
	PurposeSession = "session"
)

// Claims carries the registered claims plus the username and the token
// purpose.
type Claims struct {
	jwt.RegisteredClaims
	Username string
	Purpose  string
}

func GenerateToken(username, purpose string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Username: username,
		Purpose:  purpose,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken validates the signature and expiry and returns the username.
// The token must carry the wanted purpose.
func ParseToken(tokenString, wantPurpose string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", err
	}

	if !token.Valid || claims.Purpose != wantPurpose {
		return "", common.ErrInvalidToken
	}

	return claims.Username, nil
}
