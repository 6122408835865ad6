package sessions

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mailwebhook/mcp-gateway-go/internal/sessionid"
)

const (
	defaultCapacity      = 100
	defaultIdleTimeout   = 5 * time.Minute
	defaultSweepInterval = time.Minute
)

// Status classifies registry load for health reporting.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// session is one registry entry. The transport handle's lifetime is scoped
// to the entry: removal closes it.
type session struct {
	id             string
	client         ClientInfo
	transport      Transport
	createdAt      time.Time
	lastActivityAt time.Time
}

// Manager is the bounded session registry. Safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	table     map[string]*session
	minter    *sessionid.Minter
	capacity  int
	idle      time.Duration
	sweepMin  time.Duration
	lastSweep time.Time
	log       *slog.Logger

	now func() time.Time // test seam
}

// Option configures the Manager.
type Option func(*Manager)

// WithCapacity bounds the registry size.
func WithCapacity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithIdleTimeout sets the inactivity window after which a session is
// lazily expired.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idle = d
		}
	}
}

// WithSweepInterval sets the minimum spacing between CleanupExpired passes.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepMin = d
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager constructs a Manager with a fresh id minter.
func NewManager(opts ...Option) (*Manager, error) {
	minter, err := sessionid.NewMinter()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		table:    make(map[string]*session),
		minter:   minter,
		capacity: defaultCapacity,
		idle:     defaultIdleTimeout,
		sweepMin: defaultSweepInterval,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Add registers a new session for the given client and transport, evicting
// the oldest tenth of the table first if it is full. It returns the new
// session id.
func (m *Manager) Add(client ClientInfo, transport Transport) (string, error) {
	id, err := m.minter.Mint()
	if err != nil {
		return "", err
	}

	now := m.now()

	m.mu.Lock()
	if len(m.table) >= m.capacity {
		m.evictOldestLocked()
	}
	m.table[id] = &session{
		id:             id,
		client:         client,
		transport:      transport,
		createdAt:      now,
		lastActivityAt: now,
	}
	size := len(m.table)
	m.mu.Unlock()

	m.log.Info("session.add", slog.String("client_id", client.ClientID), slog.Int("size", size))
	return id, nil
}

// evictOldestLocked removes the oldest 10% of sessions by creation time
// (at least one). Caller holds m.mu.
func (m *Manager) evictOldestLocked() {
	n := m.capacity / 10
	if n < 1 {
		n = 1
	}

	byAge := make([]*session, 0, len(m.table))
	for _, s := range m.table {
		byAge = append(byAge, s)
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].createdAt.Before(byAge[j].createdAt) })

	if n > len(byAge) {
		n = len(byAge)
	}
	for _, s := range byAge[:n] {
		m.closeLocked(s, "evicted")
	}
}

// closeLocked removes one session from the table and closes its transport,
// logging but never propagating close failures. Caller holds m.mu.
func (m *Manager) closeLocked(s *session, reason string) {
	delete(m.table, s.id)
	if err := s.transport.Close(); err != nil {
		m.log.Warn("session.close.fail", slog.String("reason", reason), slog.String("err", err.Error()))
	} else {
		m.log.Debug("session.close", slog.String("reason", reason))
	}
}

// Get returns the transport for id, refreshing its activity timestamp. A
// session idle beyond the inactivity timeout is removed and reported as
// absent, as is an id that fails signature verification.
func (m *Manager) Get(id string) (Transport, error) {
	if _, err := m.minter.Verify(id); err != nil {
		return nil, ErrSessionNotFound
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.table[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if now.Sub(s.lastActivityAt) > m.idle {
		m.closeLocked(s, "idle")
		return nil, ErrSessionNotFound
	}

	s.lastActivityAt = now
	return s.transport, nil
}

// Remove deletes the session and closes its transport. It is idempotent.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.table[id]; ok {
		m.closeLocked(s, "removed")
	}
}

// Broadcast delivers data as a message event to every live session and
// returns the number of successful writes. A failed write removes that one
// session; it never fails the broadcast as a whole.
func (m *Manager) Broadcast(ctx context.Context, data []byte) int {
	now := m.now()

	m.mu.Lock()
	targets := make([]*session, 0, len(m.table))
	for _, s := range m.table {
		if now.Sub(s.lastActivityAt) > m.idle {
			continue
		}
		targets = append(targets, s)
	}
	m.mu.Unlock()

	delivered := 0
	for _, s := range targets {
		if err := s.transport.WriteEvent(ctx, EventMessage, data); err != nil {
			m.log.Warn("session.broadcast.write.fail", slog.String("err", err.Error()))
			m.Remove(s.id)
			continue
		}
		delivered++
	}
	return delivered
}

// CleanupExpired removes idle-expired sessions. It self-rate-limits to at
// most one pass per sweep interval and returns how many sessions were
// removed (0 when skipped).
func (m *Manager) CleanupExpired() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) < m.sweepMin {
		return 0
	}
	m.lastSweep = now

	removed := 0
	for _, s := range m.table {
		if now.Sub(s.lastActivityAt) > m.idle {
			m.closeLocked(s, "expired")
			removed++
		}
	}
	if removed > 0 {
		m.log.Info("session.sweep", slog.Int("removed", removed), slog.Int("size", len(m.table)))
	}
	return removed
}

// Run sweeps expired sessions on the sweep interval until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepMin)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupExpired()
		}
	}
}

// Len returns the current table size.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}

// Health classifies the registry: utilization above 0.9 is unhealthy; above
// 0.7, or more expired entries than active ones, is degraded.
func (m *Manager) Health() Status {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for _, s := range m.table {
		if now.Sub(s.lastActivityAt) > m.idle {
			expired++
		}
	}
	active := len(m.table) - expired
	utilization := float64(len(m.table)) / float64(m.capacity)

	switch {
	case utilization > 0.9:
		return StatusUnhealthy
	case utilization > 0.7 || expired > active:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
