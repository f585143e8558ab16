package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token roles recognised by the API.  Buyer tokens are minted for the
// chat gateway, one per chat user; admin tokens unlock the stock and
// reporting endpoints.
const (
	RoleBuyer = "BUYER"
	RoleAdmin = "ADMIN"
)

// CreateToken signs an HS256 JWT whose subject is the chat user id and
// whose role claim selects the permission set.  The gateway caches the
// token until exp and requests a fresh one afterwards.
func CreateToken(secret string, subject int64, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(secret))
}
