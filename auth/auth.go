// Package auth is the gateway's seam to the upstream authentication
// collaborator. The transport core never makes the authorization decision
// itself; it hands the bearer credential to an Authenticator and consumes
// the resolved client identity for rate-limit keying and logging.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates authentication failed or no valid credentials
// were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ClientInfo represents an authenticated caller.
// Implementations should be lightweight and safe for concurrent use.
type ClientInfo interface {
	// ClientID returns the unique identifier for the caller. It is the key
	// used for rate limiting.
	ClientID() string
	// Claims unmarshals the caller's claims into the provided struct
	// reference.
	Claims(ref any) error
}

// Authenticator validates bearer tokens and returns the associated client.
// It must return ErrUnauthorized (possibly wrapped) for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (ClientInfo, error)
}
