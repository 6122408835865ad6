package sessionid

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	m, err := NewMinter()
	if err != nil {
		t.Fatalf("NewMinter: %v", err)
	}

	id, err := m.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	sid, err := m.Verify(id)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := uuid.Parse(sid); err != nil {
		t.Fatalf("embedded sid is not a uuid: %q", sid)
	}

	// Two mints yield distinct ids and distinct sids.
	id2, err := m.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	sid2, err := m.Verify(id2)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id == id2 || sid == sid2 {
		t.Fatal("minted ids must be unique")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	m, err := NewMinter()
	if err != nil {
		t.Fatalf("NewMinter: %v", err)
	}
	id, err := m.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	cases := map[string]string{
		"garbage":          "not-a-jws",
		"empty":            "",
		"truncated":        id[:len(id)-10],
		"flipped tail":     id[:len(id)-1] + flip(id[len(id)-1]),
		"stripped segment": id[strings.Index(id, ".")+1:],
	}
	for name, bad := range cases {
		if _, err := m.Verify(bad); err == nil {
			t.Errorf("%s: expected verification failure", name)
		}
	}
}

func flip(b byte) string {
	if b == 'A' {
		return "B"
	}
	return "A"
}

func TestVerifyRejectsForeignMinter(t *testing.T) {
	m1, err := NewMinter()
	if err != nil {
		t.Fatalf("NewMinter: %v", err)
	}
	m2, err := NewMinter()
	if err != nil {
		t.Fatalf("NewMinter: %v", err)
	}

	id, err := m1.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := m2.Verify(id); err == nil {
		t.Fatal("a different minter must not verify foreign ids")
	}
}

func TestKeyRotation(t *testing.T) {
	m, err := NewMinter()
	if err != nil {
		t.Fatalf("NewMinter: %v", err)
	}

	oldID, err := m.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	m.AddKey("rotated", priv)
	if err := m.SetActive("rotated"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	newID, err := m.Mint()
	if err != nil {
		t.Fatalf("Mint after rotation: %v", err)
	}

	// Ids minted before and after rotation both verify.
	if _, err := m.Verify(oldID); err != nil {
		t.Fatalf("old id must survive rotation: %v", err)
	}
	if _, err := m.Verify(newID); err != nil {
		t.Fatalf("new id must verify: %v", err)
	}

	if err := m.SetActive("unknown"); err == nil {
		t.Fatal("SetActive must reject unknown kid")
	}
}
