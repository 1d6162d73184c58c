package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the parts of a sign-in token the client cares about.
type Claims struct {
	Namespace string
	Database  string
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token expired before now. Tokens without an expiry never do.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseClaims reads a token's claims without verifying its signature: the server is the
// only party that can, and does, verify it. An empty token yields zero claims.
func ParseClaims(token string) (Claims, error) {
	if token == "" {
		return Claims{}, nil
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	claims := Claims{
		Namespace: firstString(mapClaims, "ns", "NS"),
		Database:  firstString(mapClaims, "db", "DB"),
		Subject:   firstString(mapClaims, "sub", "ID"),
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

func firstString(m jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
