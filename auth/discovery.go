package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// NewFromDiscovery performs OIDC discovery against the configured issuer to
// learn its jwks_uri, then builds the same JWT authenticator as NewJWT. Use
// this when the authorization server publishes standard discovery metadata.
func NewFromDiscovery(ctx context.Context, cfg *JWTConfig) (Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, fmt.Errorf("discovery incomplete: missing jwks_uri")
	}

	return NewJWT(ctx, cfg, meta.JwksURI)
}
