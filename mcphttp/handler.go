// Package mcphttp is the gateway's transport dispatcher. One JSON-RPC
// method core is served over three delivery mechanisms: a synchronous
// request/response endpoint, a stateful two-endpoint event stream, and a
// stateless single-request event stream. The variants share the same
// authenticator, rate limiter and session registry.
package mcphttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/mailwebhook/mcp-gateway-go/auth"
	"github.com/mailwebhook/mcp-gateway-go/internal/logctx"
	"github.com/mailwebhook/mcp-gateway-go/ratelimit"
	"github.com/mailwebhook/mcp-gateway-go/sessions"
	"github.com/mailwebhook/mcp-gateway-go/tools"
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
	retryAfterHeader      = "Retry-After"

	defaultHeartbeatInterval = 15 * time.Second
	defaultStatelessTimeout  = 60 * time.Second
	maxBodyBytes             = 4 << 20
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before
// a JSON-RPC message exchange is possible. This is transport-level, not
// JSON-RPC framing. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if ct := w.Header().Get("Content-Type"); ct == "" || ct == jsonMediaType.String() {
		w.Header().Set("Content-Type", jsonMediaType.String())
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Handler serves the gateway's HTTP surface.
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	auth     auth.Authenticator
	limiter  *ratelimit.Limiter
	sessions *sessions.Manager
	disp     *dispatcher

	basePath         string
	realm            string
	heartbeatEvery   time.Duration
	statelessTimeout time.Duration
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger           *slog.Logger
	limiter          *ratelimit.Limiter
	sessionManager   *sessions.Manager
	basePath         string
	realm            string
	serverName       string
	serverVersion    string
	heartbeatEvery   time.Duration
	statelessTimeout time.Duration
}

// WithLogger sets the slog logger used by the handler. If not provided,
// slog.Default() is used.
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithRateLimiter injects the shared limiter. A default limiter is
// constructed when omitted.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(c *newConfig) { c.limiter = l }
}

// WithSessionManager injects the shared session registry. A default
// registry is constructed when omitted.
func WithSessionManager(m *sessions.Manager) Option {
	return func(c *newConfig) { c.sessionManager = m }
}

// WithBasePath mounts the MCP routes under a path other than "/mcp".
func WithBasePath(path string) Option {
	return func(c *newConfig) { c.basePath = strings.TrimRight(path, "/") }
}

// WithRealm sets the HTTP authentication realm advertised in
// WWW-Authenticate challenges. Empty (the default) omits the attribute.
func WithRealm(realm string) Option {
	return func(c *newConfig) { c.realm = strings.TrimSpace(realm) }
}

// WithServerInfo sets the identity reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(c *newConfig) { c.serverName, c.serverVersion = name, version }
}

// WithHeartbeatInterval sets the heartbeat cadence on both stream variants.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *newConfig) {
		if d > 0 {
			c.heartbeatEvery = d
		}
	}
}

// WithStatelessTimeout bounds the stateless stream's total lifetime.
func WithStatelessTimeout(d time.Duration) Option {
	return func(c *newConfig) {
		if d > 0 {
			c.statelessTimeout = d
		}
	}
}

// New constructs the Handler.
func New(registry *tools.Registry, authenticator auth.Authenticator, opts ...Option) (*Handler, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	cfg := &newConfig{
		logger:           slog.Default(),
		basePath:         "/mcp",
		serverName:       "mcp-email-gateway",
		serverVersion:    "dev",
		heartbeatEvery:   defaultHeartbeatInterval,
		statelessTimeout: defaultStatelessTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	log := slog.New(logctx.Handler{Handler: cfg.logger.Handler()})

	limiter := cfg.limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultConfig(), ratelimit.WithLogger(log))
	}
	sm := cfg.sessionManager
	if sm == nil {
		var err error
		sm, err = sessions.NewManager(sessions.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("failed to construct session manager: %w", err)
		}
	}

	h := &Handler{
		log:              log,
		auth:             authenticator,
		limiter:          limiter,
		sessions:         sm,
		basePath:         cfg.basePath,
		realm:            cfg.realm,
		heartbeatEvery:   cfg.heartbeatEvery,
		statelessTimeout: cfg.statelessTimeout,
	}
	h.disp = &dispatcher{
		registry:      registry,
		serverName:    cfg.serverName,
		serverVersion: cfg.serverVersion,
		log:           log,
	}

	base := h.basePath
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", base), h.handlePostMCP)
	mux.HandleFunc(fmt.Sprintf("GET %s/sse", base), h.handleGetSSE)
	mux.HandleFunc(fmt.Sprintf("POST %s/messages", base), h.handlePostMessages)
	mux.HandleFunc(fmt.Sprintf("GET %s/stream", base), h.handleGetStream)
	mux.HandleFunc(fmt.Sprintf("GET %s/tools", base), h.handleListTools)
	mux.HandleFunc(fmt.Sprintf("OPTIONS %s/tools", base), h.handleCORSPreflight)
	mux.HandleFunc(fmt.Sprintf("POST %s/tools/call", base), h.handleCallTool)
	mux.HandleFunc(fmt.Sprintf("OPTIONS %s/tools/call", base), h.handleCORSPreflight)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux = mux

	return h, nil
}

// Sessions exposes the session registry for wiring and tests.
func (h *Handler) Sessions() *sessions.Manager { return h.sessions }

// Limiter exposes the rate limiter for wiring and tests.
func (h *Handler) Limiter() *ratelimit.Limiter { return h.limiter }

// Run drives the background sweepers of the handler's session registry and
// rate limiter until ctx is canceled.
func (h *Handler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.sessions.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		h.limiter.Run(ctx)
	}()
	wg.Wait()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// buildBearerChallenge builds a standardized Bearer challenge header value.
func buildBearerChallenge(realm string, params map[string]string) string {
	pieces := make([]string, 0, 1+len(params))
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if v, ok := params["error"]; ok {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(v)))
	}
	if v, ok := params["error_description"]; ok {
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(v)))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// checkAuthentication resolves the caller from the Authorization header.
// On failure it writes the appropriate challenge response and returns nil.
func (h *Handler) checkAuthentication(w http.ResponseWriter, r *http.Request) auth.ClientInfo {
	ctx := r.Context()
	authHeader := r.Header.Get(authorizationHeader)

	if authHeader == "" {
		// RFC 6750: no credentials supplied, challenge without an error code.
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, nil))
		w.WriteHeader(http.StatusUnauthorized)
		return nil
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) || len(authHeader) <= len(bearerPrefix) {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, map[string]string{"error": "invalid_request", "error_description": "malformed bearer authorization header"}))
		w.WriteHeader(http.StatusBadRequest)
		return nil
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])

	client, err := h.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, map[string]string{"error": "invalid_token", "error_description": err.Error()}))
			w.WriteHeader(http.StatusUnauthorized)
			return nil
		}
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return nil
	}
	return client
}

// gate applies the rate limit for (client, endpoint). When limited it
// writes the 429 response and returns false.
func (h *Handler) gate(w http.ResponseWriter, r *http.Request, client auth.ClientInfo) bool {
	decision := h.limiter.Check(client.ClientID(), r.URL.Path)
	if !decision.Limited {
		return true
	}

	h.log.InfoContext(r.Context(), "ratelimit.block",
		slog.String("client_id", client.ClientID()),
		slog.String("endpoint", r.URL.Path),
		slog.Int("retry_after", decision.RetryAfter))

	w.Header().Set(retryAfterHeader, strconv.Itoa(decision.RetryAfter))
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      map[string]any{"code": http.StatusTooManyRequests, "message": "rate limit exceeded"},
		"retryAfter": decision.RetryAfter,
	})
	return false
}

func (h *Handler) handleCORSPreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

// handleHealthz aggregates component health. Unauthenticated so platform
// probes can reach it.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	sessStatus := string(h.sessions.Health())
	limitStatus := string(h.limiter.Health())

	overall := worstStatus(sessStatus, limitStatus)
	code := http.StatusOK
	if overall == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": overall,
		"components": map[string]any{
			"sessions":  map[string]any{"status": sessStatus, "count": h.sessions.Len()},
			"ratelimit": map[string]any{"status": limitStatus, "records": h.limiter.Size()},
		},
	})
}

func worstStatus(statuses ...string) string {
	worst := "healthy"
	for _, s := range statuses {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "degraded":
			worst = "degraded"
		}
	}
	return worst
}
