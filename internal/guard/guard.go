package guard

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// PositionCounter is the slice of the broker gateway the guard needs.
// An empty symbol asks for the account-wide count.
type PositionCounter interface {
	GetOpenPositionCount(ctx context.Context, symbol string) (int, error)
}

// Config defines position limits and reconciliation behaviour.
type Config struct {
	MaxPositions      int           `json:"max_positions"`
	InflightTimeout   time.Duration `json:"inflight_timeout"`
	ReconcileInterval time.Duration `json:"reconcile_interval"`
	DesyncFix         bool          `json:"desync_fix"`
	Scope             string        `json:"scope"` // symbol counted by the periodic loop, "" = all
}

// DefaultConfig returns a single-position guard.
func DefaultConfig() Config {
	return Config{
		MaxPositions:      1,
		InflightTimeout:   30 * time.Second,
		ReconcileInterval: 10 * time.Second,
		DesyncFix:         true,
	}
}

// Validate rejects limits that would make the guard meaningless.
func (c Config) Validate() error {
	if c.MaxPositions <= 0 {
		return fmt.Errorf("guard: max_positions must be > 0, got %d", c.MaxPositions)
	}
	if c.InflightTimeout < 0 {
		return fmt.Errorf("guard: inflight_timeout must be >= 0, got %s", c.InflightTimeout)
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("guard: reconcile_interval must be >= 0, got %s", c.ReconcileInterval)
	}
	return nil
}

// State is a copy of the guard's view of the account.
type State struct {
	OpenCount       int                  `json:"open_count"`
	InFlight        map[string]time.Time `json:"in_flight"`
	LastReconcileAt time.Time            `json:"last_reconcile_at"`
	LastFixReason   string               `json:"last_fix_reason,omitempty"`
}

// Report describes one reconciliation attempt.
type Report struct {
	Timestamp   time.Time `json:"timestamp"`
	Symbol      string    `json:"symbol"`
	LocalCount  int       `json:"local_count"`
	BrokerCount int       `json:"broker_count"`
	HasDiff     bool      `json:"has_diff"`
	Synced      bool      `json:"synced"`
	Throttled   bool      `json:"throttled"`
	Reason      string    `json:"reason,omitempty"`
}

// PositionGuard caches the open-position count and pending order attempts.
// The broker is always the authority; the guard only ever follows it.
type PositionGuard struct {
	cfg    Config
	broker PositionCounter
	now    func() time.Time

	mu              sync.Mutex
	openCount       int
	inFlight        map[string]time.Time
	lastReconcileAt time.Time
	lastAttemptAt   time.Time
	lastFixReason   string
	onFix           func(Report)

	reconcileMu sync.Mutex // one broker round trip at a time
}

// Option customizes a PositionGuard.
type Option func(*PositionGuard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *PositionGuard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithOpenCount seeds the local count, e.g. from a first broker query.
func WithOpenCount(n int) Option {
	return func(g *PositionGuard) { g.openCount = n }
}

// New validates cfg and returns a guard.
func New(cfg Config, broker PositionCounter, opts ...Option) (*PositionGuard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &PositionGuard{
		cfg:      cfg,
		broker:   broker,
		now:      time.Now,
		inFlight: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// InflightKey derives the in-flight slot for an instrument. Entries, closes and
// stop updates on the same symbol share it.
func InflightKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Config returns the guard limits.
func (g *PositionGuard) Config() Config { return g.cfg }

// OnFix registers a hook called whenever reconciliation finds a difference.
func (g *PositionGuard) OnFix(fn func(Report)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onFix = fn
}

// CanOpen drops abandoned in-flight entries and reports whether another
// position fits under MaxPositions.
func (g *PositionGuard) CanOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gcInflightLocked(g.now())
	return g.openCount < g.cfg.MaxPositions
}

func (g *PositionGuard) gcInflightLocked(now time.Time) {
	if g.cfg.InflightTimeout <= 0 {
		return
	}
	for key, at := range g.inFlight {
		if now.Sub(at) > g.cfg.InflightTimeout {
			delete(g.inFlight, key)
			log.Printf("guard: in-flight %s abandoned after %s without an answer", key, now.Sub(at).Round(time.Millisecond))
		}
	}
}

// MarkInflight records a pending order attempt.
func (g *PositionGuard) MarkInflight(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight[key] = g.now()
}

// TryMarkInflight claims the slot for key unless another attempt holds it.
// An abandoned holder (older than InflightTimeout) is replaced. Only a caller
// that got true may ClearInflight the key.
func (g *PositionGuard) TryMarkInflight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if at, held := g.inFlight[key]; held {
		if g.cfg.InflightTimeout <= 0 || now.Sub(at) <= g.cfg.InflightTimeout {
			return false
		}
		log.Printf("guard: in-flight %s abandoned after %s, slot taken over", key, now.Sub(at).Round(time.Millisecond))
	}
	g.inFlight[key] = now
	return true
}

// ClearInflight removes a pending order attempt. Unknown keys are ignored.
func (g *PositionGuard) ClearInflight(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}

// HasInflight reports whether key has a pending attempt.
func (g *PositionGuard) HasInflight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[key]
	return ok
}

// RecordOpened counts a fill reported by the broker.
func (g *PositionGuard) RecordOpened() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openCount++
}

// RecordClosed counts a position the broker reported closed.
func (g *PositionGuard) RecordClosed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openCount > 0 {
		g.openCount--
	}
}

// ReconcileWithBroker refreshes the open count from the broker, at most once
// per ReconcileInterval. On a broker error local state is left as it was.
func (g *PositionGuard) ReconcileWithBroker(ctx context.Context, symbol string, desyncFix bool) (Report, error) {
	return g.reconcile(ctx, symbol, desyncFix, false)
}

// ForceReconcile reconciles now, ignoring the throttle.
func (g *PositionGuard) ForceReconcile(ctx context.Context, symbol string) (Report, error) {
	return g.reconcile(ctx, symbol, g.cfg.DesyncFix, true)
}

func (g *PositionGuard) reconcile(ctx context.Context, symbol string, desyncFix, force bool) (Report, error) {
	g.reconcileMu.Lock()
	defer g.reconcileMu.Unlock()

	g.mu.Lock()
	now := g.now()
	if !force && !g.lastAttemptAt.IsZero() && now.Sub(g.lastAttemptAt) < g.cfg.ReconcileInterval {
		rep := Report{Timestamp: now, Symbol: symbol, LocalCount: g.openCount, Throttled: true}
		g.mu.Unlock()
		return rep, nil
	}
	g.lastAttemptAt = now
	g.mu.Unlock()

	if g.broker == nil {
		return Report{Timestamp: now, Symbol: symbol}, nil
	}

	brokerCount, err := g.broker.GetOpenPositionCount(ctx, symbol)
	if err != nil {
		log.Printf("❌ guard: reconcile %q failed, keeping local state: %v", symbol, err)
		return Report{Timestamp: now, Symbol: symbol}, fmt.Errorf("guard reconcile: %w", err)
	}

	g.mu.Lock()
	rep := Report{
		Timestamp:   g.now(),
		Symbol:      symbol,
		LocalCount:  g.openCount,
		BrokerCount: brokerCount,
	}
	g.lastReconcileAt = rep.Timestamp
	if brokerCount != g.openCount {
		rep.HasDiff = true
		rep.Reason = fmt.Sprintf("open_count_desync local=%d broker=%d", g.openCount, brokerCount)
		g.lastFixReason = rep.Reason
		if desyncFix {
			g.openCount = brokerCount
			rep.Synced = true
		}
	}
	hook := g.onFix
	g.mu.Unlock()

	if rep.HasDiff {
		status := "❌ Not synced"
		if rep.Synced {
			status = "✅ Synced"
		}
		log.Printf("⚠️ guard: %s [%s]", rep.Reason, status)
		if hook != nil {
			hook(rep)
		}
	}
	return rep, nil
}

// Start reconciles every ReconcileInterval until ctx is done.
func (g *PositionGuard) Start(ctx context.Context) {
	if g.cfg.ReconcileInterval <= 0 || g.broker == nil {
		log.Printf("guard: periodic reconciliation disabled")
		return
	}
	ticker := time.NewTicker(g.cfg.ReconcileInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// errors are logged inside
				_, _ = g.ForceReconcile(ctx, g.cfg.Scope)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("✓ Position guard reconciliation started (interval: %v, desync-fix: %v)", g.cfg.ReconcileInterval, g.cfg.DesyncFix)
}

// Snapshot returns a copy of the guard state.
func (g *PositionGuard) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	inflight := make(map[string]time.Time, len(g.inFlight))
	for k, v := range g.inFlight {
		inflight[k] = v
	}
	return State{
		OpenCount:       g.openCount,
		InFlight:        inflight,
		LastReconcileAt: g.lastReconcileAt,
		LastFixReason:   g.lastFixReason,
	}
}
