package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StaffSubject is the subject of every race-control session token.
const StaffSubject = "staff"

// DefaultTokenTTL covers a full 24 hour relay with some margin.
const DefaultTokenTTL = 30 * time.Hour

// StaffClaims are carried by a race-control session token. Station names the
// device that logged in and ends up in the request logs.
type StaffClaims struct {
	Station string `json:"station,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a staff session token valid for ttl from now.
func IssueToken(secret, station string, now time.Time, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("token secret is not configured")
	}
	claims := &StaffClaims{
		Station: station,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   StaffSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies the signature, expiry and subject of a staff token.
func ParseToken(tokenString, secret string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithSubject(StaffSubject))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*StaffClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
