package sqlstore

import (
	"context"
	"crypto/subtle"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goliatone/go-querystate/transport"
)

// TokenClaims are the claims of issued tokens.
type TokenClaims struct {
	Namespace string `json:"ns,omitempty"`
	Database  string `json:"db,omitempty"`
	jwt.RegisteredClaims
}

// SignIn checks the credentials and returns an HS256 token for the user.
func (s *Store) SignIn(ctx context.Context, creds transport.Credentials) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transport.Wrap("signin", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.users) > 0 {
		password, ok := s.users[creds.Username]
		if !ok || subtle.ConstantTimeCompare([]byte(password), []byte(creds.Password)) != 1 {
			return "", transport.Wrap("signin", ErrAuthentication)
		}
	}

	ns, db := creds.Namespace, creds.Database
	if ns == "" {
		ns = s.namespace
	}
	if db == "" {
		db = s.database
	}

	now := s.now()
	claims := TokenClaims{
		Namespace: ns,
		Database:  db,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sqlstore",
			Subject:   creds.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", transport.Wrap("signin", err)
	}
	return token, nil
}
