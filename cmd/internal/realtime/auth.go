package realtime

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned by a TokenVerifier when the handshake must be rejected.
var ErrUnauthorized = errors.New("realtime: unauthorized")

// TokenVerifier checks the handshake credentials of a connecting user.
type TokenVerifier interface {
	Verify(ctx context.Context, userID, token string) error
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, userID, token string) error

// Verify calls f.
func (f TokenVerifierFunc) Verify(ctx context.Context, userID, token string) error {
	return f(ctx, userID, token)
}

// PresenceTokenVerifier only requires a non-empty token. Used in development when no signing
// secret is configured.
type PresenceTokenVerifier struct{}

// Verify implements TokenVerifier.
func (PresenceTokenVerifier) Verify(_ context.Context, userID, token string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(token) == "" {
		return ErrUnauthorized
	}
	return nil
}

// Claims are the handshake token claims. The subject must be the connecting user id.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed tokens whose subject equals the connecting user id.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier constructs a verifier for HS256 tokens.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify implements TokenVerifier.
func (v *JWTVerifier) Verify(_ context.Context, userID, token string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(token) == "" {
		return ErrUnauthorized
	}

	var claims Claims
	parsed, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return errors.Join(ErrUnauthorized, err)
	}
	if claims.Subject != userID {
		return ErrUnauthorized
	}
	return nil
}
