package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the account id issued by the RunShare auth server. Older
// tokens only set the subject.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func (c *Claims) subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// SignToken issues an HS256 token for userID. The production tokens come from
// the auth server; this is used by tooling and tests sharing its secret.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id required")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
