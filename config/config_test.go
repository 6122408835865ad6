package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.BasePath != "/mcp" {
		t.Fatalf("unexpected base path: %s", cfg.BasePath)
	}
	if cfg.RateLimitMax != 100 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit defaults: %d / %s", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if cfg.HeartbeatInterval != 15*time.Second || cfg.StatelessTimeout != 60*time.Second {
		t.Fatalf("unexpected stream defaults: %s / %s", cfg.HeartbeatInterval, cfg.StatelessTimeout)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "10")
	t.Setenv("STATELESS_STREAM_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.RateLimitMax != 10 {
		t.Fatalf("unexpected rate limit: %d", cfg.RateLimitMax)
	}
	if cfg.StatelessTimeout != 90*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.StatelessTimeout)
	}
}

func TestParseStaticTokens(t *testing.T) {
	cfg := &Config{StaticTokens: "tok1=alice, tok2=bob,bare"}

	tokens, err := cfg.ParseStaticTokens()
	if err != nil {
		t.Fatalf("ParseStaticTokens: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(tokens))
	}
	if tokens["tok1"] != "alice" || tokens["tok2"] != "bob" {
		t.Fatalf("unexpected mapping: %v", tokens)
	}
	// A bare token uses itself as the client id.
	if tokens["bare"] != "bare" {
		t.Fatalf("unexpected bare mapping: %v", tokens)
	}
}

func TestParseStaticTokensEmpty(t *testing.T) {
	cfg := &Config{}
	tokens, err := cfg.ParseStaticTokens()
	if err != nil {
		t.Fatalf("ParseStaticTokens: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("expected empty map, got %v", tokens)
	}
}

func TestParseStaticTokensRejectsEmptyToken(t *testing.T) {
	cfg := &Config{StaticTokens: "=client"}
	if _, err := cfg.ParseStaticTokens(); err == nil {
		t.Fatal("expected error for empty token")
	}
}
