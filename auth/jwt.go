package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig controls validation for JWT bearer tokens.
type JWTConfig struct {
	Issuer            string
	ExpectedAudiences []string
	AllowedAlgs       []string
	Leeway            time.Duration
}

// DefaultJWTConfig returns a JWTConfig with safe algorithm and leeway
// defaults.
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{AllowedAlgs: []string{"RS256"}, Leeway: 60 * time.Second}
}

// clientInfo is the concrete ClientInfo for validated tokens.
type clientInfo struct {
	sub    string
	claims map[string]any
}

func (c *clientInfo) ClientID() string { return c.sub }
func (c *clientInfo) Claims(ref any) error {
	b, err := json.Marshal(c.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

type jwtAuthenticator struct {
	cfg     *JWTConfig
	keyfunc jwt.Keyfunc
}

// NewJWT constructs an authenticator that validates JWT bearer tokens
// against a statically configured issuer, audiences and JWKS URI. JWKS keys
// are auto-refreshed.
func NewJWT(ctx context.Context, cfg *JWTConfig, jwksURI string) (Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if len(cfg.ExpectedAudiences) == 0 {
		return nil, errors.New("at least one expected audience required")
	}
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &jwtAuthenticator{cfg: cfg, keyfunc: func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		allowed := false
		for _, a := range cfg.AllowedAlgs {
			if alg == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf.Keyfunc(t)
	}}, nil
}

// CheckAuthentication implements Authenticator.
func (a *jwtAuthenticator) CheckAuthentication(ctx context.Context, tok string) (ClientInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(a.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithLeeway(a.cfg.Leeway),
	)
	parsed, err := parser.Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if !audIntersects(claims["aud"], a.cfg.ExpectedAudiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return &clientInfo{sub: sub, claims: claims}, nil
}

// audIntersects checks the aud claim (string or array form) against the
// accepted audience set.
func audIntersects(aud any, wants []string) bool {
	wantSet := map[string]struct{}{}
	for _, w := range wants {
		wantSet[w] = struct{}{}
	}
	switch v := aud.(type) {
	case string:
		_, ok := wantSet[v]
		return ok
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				if _, ok2 := wantSet[s]; ok2 {
					return true
				}
			}
		}
	case []string:
		for _, s := range v {
			if _, ok := wantSet[s]; ok {
				return true
			}
		}
	}
	return false
}

var _ Authenticator = (*jwtAuthenticator)(nil)
