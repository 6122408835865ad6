// Package ratelimit implements fixed-window request counting per
// (client, endpoint) pair. Windows reset wholesale once elapsed; endpoint
// overrides are derived as pure, call-local configurations so concurrent
// checks never observe each other's adjustments.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

// Config holds the base limiting policy.
type Config struct {
	// MaxRequests is the number of requests admitted per window.
	MaxRequests int
	// Window is the fixed window length.
	Window time.Duration
}

// DefaultConfig returns the stock policy: 100 requests per minute.
func DefaultConfig() Config {
	return Config{MaxRequests: 100, Window: time.Minute}
}

// Endpoint coefficients applied by EffectiveConfig. Administrative surfaces
// get a hard haircut; tool invocation and listing are scaled below the base.
const (
	adminDivisor    = 6
	callCoefficient = 0.8
	listCoefficient = 0.3
)

// EffectiveConfig derives the policy for a specific endpoint from the base
// config. It is a pure function: the base is never mutated, so there is no
// override-then-restore window for concurrent checks to race on.
func EffectiveConfig(base Config, endpoint string) Config {
	derived := base
	switch {
	case endpoint == "":
		// base policy
	case strings.HasPrefix(endpoint, "/admin"):
		derived.MaxRequests = base.MaxRequests / adminDivisor
	case strings.HasSuffix(endpoint, "/tools/call"):
		derived.MaxRequests = int(float64(base.MaxRequests) * callCoefficient)
	case strings.HasSuffix(endpoint, "/tools") || strings.HasSuffix(endpoint, "/tools/list"):
		derived.MaxRequests = int(float64(base.MaxRequests) * listCoefficient)
	}
	if derived.MaxRequests < 1 {
		derived.MaxRequests = 1
	}
	return derived
}

// record is the per-key fixed-window counter. Replaced wholesale when its
// window elapses.
type record struct {
	count   int
	resetAt time.Time
	blocked bool
}

// Decision is the outcome of a single admission check.
type Decision struct {
	// Limited is true when the request must be rejected.
	Limited bool
	// Remaining is the number of requests still admitted in this window.
	Remaining int
	// RetryAfter is the whole number of seconds until the window resets.
	// Only meaningful when Limited is true.
	RetryAfter int
	// ResetAt is when the current window ends.
	ResetAt time.Time
}

// Status classifies limiter load for health reporting.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const (
	degradedRecordCount  = 10_000
	unhealthyRecordCount = 50_000
)

// Limiter is the shared fixed-window limiter. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	base    Config
	records map[string]*record
	log     *slog.Logger

	now func() time.Time // test seam
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for sweep reporting.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New constructs a Limiter with the given base policy.
func New(base Config, opts ...Option) *Limiter {
	if base.MaxRequests <= 0 {
		base.MaxRequests = DefaultConfig().MaxRequests
	}
	if base.Window <= 0 {
		base.Window = DefaultConfig().Window
	}
	l := &Limiter{
		base:    base,
		records: make(map[string]*record),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// key builds the record key: clientID alone for the base policy, or
// clientID:endpoint when an endpoint is supplied.
func key(clientID, endpoint string) string {
	if endpoint == "" {
		return clientID
	}
	return clientID + ":" + endpoint
}

// Check records one request for (clientID, endpoint) and decides whether it
// is admitted under the endpoint's effective policy.
func (l *Limiter) Check(clientID, endpoint string) Decision {
	cfg := EffectiveConfig(l.base, endpoint)
	now := l.now()
	k := key(clientID, endpoint)

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[k]
	if !ok || !now.Before(rec.resetAt) {
		rec = &record{resetAt: now.Add(cfg.Window)}
		l.records[k] = rec
	}

	rec.count++
	if rec.count > cfg.MaxRequests {
		rec.blocked = true
		retryAfter := int(math.Ceil(rec.resetAt.Sub(now).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{Limited: true, Remaining: 0, RetryAfter: retryAfter, ResetAt: rec.resetAt}
	}

	return Decision{Limited: false, Remaining: cfg.MaxRequests - rec.count, ResetAt: rec.resetAt}
}

// Reset discards the record for (clientID, endpoint), unblocking the caller
// immediately regardless of window state.
func (l *Limiter) Reset(clientID, endpoint string) {
	l.mu.Lock()
	delete(l.records, key(clientID, endpoint))
	l.mu.Unlock()
}

// Sweep removes records whose window has elapsed and returns how many were
// purged.
func (l *Limiter) Sweep() int {
	now := l.now()
	purged := 0

	l.mu.Lock()
	for k, rec := range l.records {
		if !now.Before(rec.resetAt) {
			delete(l.records, k)
			purged++
		}
	}
	l.mu.Unlock()

	return purged
}

// Run sweeps elapsed records on an interval capped at min(window, 5m) until
// ctx is canceled.
func (l *Limiter) Run(ctx context.Context) {
	interval := l.base.Window
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged := l.Sweep(); purged > 0 {
				l.log.Debug("ratelimit.sweep", slog.Int("purged", purged))
			}
		}
	}
}

// Size returns the number of live records.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Health classifies limiter load by live record count.
func (l *Limiter) Health() Status {
	n := l.Size()
	switch {
	case n > unhealthyRecordCount:
		return StatusUnhealthy
	case n > degradedRecordCount:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
