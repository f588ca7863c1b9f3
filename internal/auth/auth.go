package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// ClientContext identifies the authenticated caller.
type ClientContext struct {
	ClientID string
}

// Authenticator validates incoming requests and returns client context.
type Authenticator interface {
	Authenticate(r *http.Request) (*ClientContext, error)
}

// extractAPIKey pulls the Bearer token from the Authorization header.
// RFC 6750: the "Bearer" scheme is case-insensitive.
func extractAPIKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAPIKey
	}

	token := header
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = token[7:]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

// StaticAuthenticator validates key format only: the key must carry the
// "gov_" prefix. No database lookup; suitable for single-tenant
// deployments where the key is shared out-of-band.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(r *http.Request) (*ClientContext, error) {
	key, err := extractAPIKey(r)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(key, "gov_") {
		return nil, ErrInvalidAPIKey
	}

	return &ClientContext{ClientID: keyPrefix(key)}, nil
}

// keyPrefix returns the first 8 chars of a key: enough to identify a
// client in logs without exposing the secret.
func keyPrefix(key string) string {
	if len(key) < 8 {
		return key
	}
	return key[:8]
}
