// Package sessionid mints and verifies opaque session identifiers. An id is
// a uuid-v4 wrapped in a compact Ed25519 JWS, so it is unguessable and a
// node can reject forged or truncated ids before touching the session table.
package sessionid

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

// Minter signs and verifies session ids with an in-memory Ed25519 key set.
// Keys are registered under a kid; the active key signs new ids while every
// registered key can still verify, which allows rotation without dropping
// live sessions.
type Minter struct {
	activeKid string
	privKeys  map[string]ed25519.PrivateKey
	pubKeys   map[string]ed25519.PublicKey
}

type idClaims struct {
	SID string `json:"sid"`
	IAT int64  `json:"iat"`
}

// NewMinter creates a Minter with a freshly generated ephemeral key. Ids
// minted by one process are only verifiable by that process, which is the
// intended scope for in-memory session tables.
func NewMinter() (*Minter, error) {
	m := &Minter{
		privKeys: make(map[string]ed25519.PrivateKey),
		pubKeys:  make(map[string]ed25519.PublicKey),
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	kid := uuid.NewString()
	m.AddKey(kid, priv)
	m.activeKid = kid
	return m, nil
}

// AddKey registers a key pair under kid. The active key is unchanged.
func (m *Minter) AddKey(kid string, priv ed25519.PrivateKey) {
	m.privKeys[kid] = priv
	m.pubKeys[kid] = priv.Public().(ed25519.PublicKey)
}

// SetActive selects the key used for signing.
func (m *Minter) SetActive(kid string) error {
	if _, ok := m.privKeys[kid]; !ok {
		return fmt.Errorf("unknown kid: %s", kid)
	}
	m.activeKid = kid
	return nil
}

// Mint returns a new signed session id.
func (m *Minter) Mint() (string, error) {
	priv, ok := m.privKeys[m.activeKid]
	if !ok {
		return "", fmt.Errorf("active kid not found: %s", m.activeKid)
	}
	payload, err := json.Marshal(idClaims{SID: uuid.NewString(), IAT: time.Now().Unix()})
	if err != nil {
		return "", fmt.Errorf("failed to marshal id claims: %w", err)
	}
	opts := (&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", m.activeKid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign session id: %w", err)
	}
	compact, err := jws.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize session id: %w", err)
	}
	return compact, nil
}

// Verify checks the signature on a session id and returns the embedded uuid.
func (m *Minter) Verify(id string) (string, error) {
	jws, err := jose.ParseSigned(id, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return "", fmt.Errorf("failed to parse session id: %w", err)
	}
	if len(jws.Signatures) != 1 {
		return "", fmt.Errorf("unexpected signatures: %d", len(jws.Signatures))
	}
	kid := jws.Signatures[0].Protected.KeyID
	pub, ok := m.pubKeys[kid]
	if !ok {
		return "", fmt.Errorf("unknown kid: %s", kid)
	}
	payload, err := jws.Verify(pub)
	if err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}
	var claims idClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("invalid id claims: %w", err)
	}
	if claims.SID == "" {
		return "", fmt.Errorf("missing sid claim")
	}
	return claims.SID, nil
}
