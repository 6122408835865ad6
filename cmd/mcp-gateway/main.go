// Command mcp-gateway serves the email backend over the Model Context
// Protocol: JSON-RPC 2.0 over synchronous HTTP and two event-stream
// variants, with bearer auth, rate limiting and response caching in front.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mailwebhook/mcp-gateway-go/auth"
	"github.com/mailwebhook/mcp-gateway-go/cache"
	"github.com/mailwebhook/mcp-gateway-go/config"
	"github.com/mailwebhook/mcp-gateway-go/internal/logctx"
	"github.com/mailwebhook/mcp-gateway-go/mailapi"
	"github.com/mailwebhook/mcp-gateway-go/mailtools"
	"github.com/mailwebhook/mcp-gateway-go/mcphttp"
	"github.com/mailwebhook/mcp-gateway-go/ratelimit"
	"github.com/mailwebhook/mcp-gateway-go/sessions"
	"github.com/mailwebhook/mcp-gateway-go/storage"
	memorystorage "github.com/mailwebhook/mcp-gateway-go/storage/memory"
	redisstorage "github.com/mailwebhook/mcp-gateway-go/storage/redis"
	"github.com/mailwebhook/mcp-gateway-go/tools"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "mcp-gateway",
		Short:        "MCP gateway for the email delivery API",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := slog.New(logctx.Handler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}),
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize cache store: %w", err)
	}
	defer store.Close()

	cacheManager := cache.New(store,
		cache.WithDefaultTTL(cfg.CacheTTL),
		cache.WithLogger(log),
	)

	backendOpts := []mailapi.Option{
		mailapi.WithTimeout(cfg.BackendTimeout),
		mailapi.WithMaxRetries(cfg.BackendRetries),
		mailapi.WithLogger(log),
	}
	if cfg.BackendToken != "" {
		backendOpts = append(backendOpts, mailapi.WithToken(cfg.BackendToken))
	}
	backend, err := mailapi.New(cfg.BackendURL, backendOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize backend client: %w", err)
	}

	var templates mailtools.TemplateSource
	if cfg.TemplateDir != "" {
		fsTemplates, err := mailtools.NewFSTemplateSource(cfg.TemplateDir, log)
		if err != nil {
			return fmt.Errorf("failed to load templates from %s: %w", cfg.TemplateDir, err)
		}
		defer fsTemplates.Close()
		templates = fsTemplates
		log.Info("templates.source", slog.String("mode", "filesystem"), slog.String("dir", cfg.TemplateDir))
	}

	registry, err := tools.NewRegistry(mailtools.All(mailtools.Deps{
		Backend:   backend,
		Cache:     cacheManager,
		Templates: templates,
		Log:       log,
	}), tools.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	authenticator, err := newAuthenticator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize authenticator: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimitMax,
		Window:      cfg.RateLimitWindow,
	}, ratelimit.WithLogger(log))

	sessionManager, err := sessions.NewManager(
		sessions.WithCapacity(cfg.SessionCapacity),
		sessions.WithIdleTimeout(cfg.SessionIdleTimeout),
		sessions.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize session manager: %w", err)
	}

	handler, err := mcphttp.New(registry, authenticator,
		mcphttp.WithLogger(log),
		mcphttp.WithRateLimiter(limiter),
		mcphttp.WithSessionManager(sessionManager),
		mcphttp.WithBasePath(cfg.BasePath),
		mcphttp.WithServerInfo(cfg.ServerName, cfg.ServerVersion),
		mcphttp.WithHeartbeatInterval(cfg.HeartbeatInterval),
		mcphttp.WithStatelessTimeout(cfg.StatelessTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize handler: %w", err)
	}

	go handler.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.listen", slog.String("addr", cfg.ListenAddr), slog.String("base_path", cfg.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errCh
}

// newStore picks the cache backing store: Redis when configured, otherwise
// process memory.
func newStore(cfg *config.Config) (storage.Store, error) {
	if cfg.RedisAddr == "" {
		store, err := memorystorage.New(cfg.CacheCapacity)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := redisstorage.New(redisstorage.Config{
		Client: redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newAuthenticator picks the auth scheme: OIDC-discovered JWT validation
// when an issuer is configured, otherwise the static shared-secret map.
func newAuthenticator(ctx context.Context, cfg *config.Config) (auth.Authenticator, error) {
	if cfg.OIDCIssuer != "" {
		jwtCfg := auth.DefaultJWTConfig()
		jwtCfg.Issuer = cfg.OIDCIssuer
		if cfg.JWTAudience != "" {
			jwtCfg.ExpectedAudiences = []string{cfg.JWTAudience}
		}
		return auth.NewFromDiscovery(ctx, jwtCfg)
	}

	tokens, err := cfg.ParseStaticTokens()
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errors.New("no authentication configured: set AUTH_STATIC_TOKENS or AUTH_OIDC_ISSUER")
	}
	return auth.NewStaticTokens(tokens), nil
}
