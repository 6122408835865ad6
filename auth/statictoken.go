package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
)

// staticTokenAuthenticator resolves a fixed token-to-client mapping. It is
// intended for development deployments and tests, matching the original
// gateway's shared-secret bearer scheme.
type staticTokenAuthenticator struct {
	tokens map[string]string // token -> client id
}

// NewStaticTokens builds an Authenticator from a token-to-clientID map.
func NewStaticTokens(tokens map[string]string) Authenticator {
	copied := make(map[string]string, len(tokens))
	for tok, client := range tokens {
		copied[tok] = client
	}
	return &staticTokenAuthenticator{tokens: copied}
}

// CheckAuthentication implements Authenticator with constant-time token
// comparison.
func (a *staticTokenAuthenticator) CheckAuthentication(ctx context.Context, tok string) (ClientInfo, error) {
	for candidate, client := range a.tokens {
		if len(candidate) == len(tok) && subtle.ConstantTimeCompare([]byte(candidate), []byte(tok)) == 1 {
			return &clientInfo{sub: client, claims: map[string]any{"sub": client}}, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown token", ErrUnauthorized)
}

var _ Authenticator = (*staticTokenAuthenticator)(nil)
