// Package auth turns a bearer credential into a verified user identity.
// Token issuance belongs to the account backend; this side only validates.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SnProjects/snooze/internal/domain"
)

// ErrInvalidCredential covers missing, malformed, badly signed and expired
// tokens. The connection is closed with an authentication-failure signal
// and never retried by the server.
var ErrInvalidCredential = errors.New("invalid credential")

type Identity struct {
	UserID   domain.UserID
	Username string
}

type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// Claims carried by tokens the account backend signs.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type jwtVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) Verifier {
	return &jwtVerifier{secret: []byte(secret)}
}

func (v *jwtVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrInvalidCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return Identity{}, ErrInvalidCredential
	}

	username := claims.Username
	if username == "" {
		username = claims.UserID
	}
	return Identity{UserID: domain.UserID(claims.UserID), Username: username}, nil
}

// IssueToken signs a token the verifier accepts. Used by tests and the
// debug-mode token endpoint; production tokens come from the account
// backend with the same claims.
func IssueToken(secret string, userID domain.UserID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   string(userID),
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
