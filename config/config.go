// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full gateway configuration, populated from environment
// variables via envdecode struct tags.
type Config struct {
	// ListenAddr is the HTTP bind address. ENV: LISTEN_ADDR
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	// BasePath mounts the MCP routes. ENV: MCP_BASE_PATH
	BasePath string `env:"MCP_BASE_PATH,default=/mcp"`
	// ServerName and ServerVersion identify the gateway to MCP clients.
	ServerName    string `env:"SERVER_NAME,default=mcp-email-gateway"`
	ServerVersion string `env:"SERVER_VERSION,default=dev"`

	// LogLevel is one of debug, info, warn, error. ENV: LOG_LEVEL
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// Backend email service.
	BackendURL     string        `env:"MAIL_API_URL,default=http://localhost:3000/api"`
	BackendToken   string        `env:"MAIL_API_TOKEN"`
	BackendTimeout time.Duration `env:"MAIL_API_TIMEOUT,default=10s"`
	BackendRetries int           `env:"MAIL_API_MAX_RETRIES,default=3"`

	// Cache backing store. When RedisAddr is set the gateway caches in Redis,
	// otherwise in process memory.
	RedisAddr     string        `env:"REDIS_ADDR"`
	CacheTTL      time.Duration `env:"CACHE_TTL,default=5m"`
	CacheCapacity int           `env:"CACHE_CAPACITY,default=4096"`

	// Rate limiting.
	RateLimitMax    int           `env:"RATE_LIMIT_MAX_REQUESTS,default=100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`

	// Streaming sessions.
	SessionCapacity    int           `env:"SESSION_CAPACITY,default=100"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT,default=5m"`
	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL,default=15s"`
	StatelessTimeout   time.Duration `env:"STATELESS_STREAM_TIMEOUT,default=60s"`

	// Authentication. StaticTokens is a comma-separated list of
	// token=clientID pairs for the shared-secret scheme. When OIDCIssuer is
	// set, JWT bearer auth via OIDC discovery is used instead.
	StaticTokens string `env:"AUTH_STATIC_TOKENS"`
	OIDCIssuer   string `env:"AUTH_OIDC_ISSUER"`
	JWTAudience  string `env:"AUTH_JWT_AUDIENCE"`

	// TemplateDir, when set, serves email templates from local JSON files
	// instead of the backend's template endpoints.
	TemplateDir string `env:"TEMPLATE_DIR"`
}

// Load populates Config from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	return &cfg, nil
}

// ParseStaticTokens splits the AUTH_STATIC_TOKENS value into a
// token-to-clientID map. Entries without an explicit client id use the token
// itself as the id.
func (c *Config) ParseStaticTokens() (map[string]string, error) {
	tokens := make(map[string]string)
	if c.StaticTokens == "" {
		return tokens, nil
	}
	for _, entry := range strings.Split(c.StaticTokens, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		tok, client, found := strings.Cut(entry, "=")
		if tok == "" {
			return nil, fmt.Errorf("invalid static token entry: %q", entry)
		}
		if !found || client == "" {
			client = tok
		}
		tokens[tok] = client
	}
	return tokens, nil
}
