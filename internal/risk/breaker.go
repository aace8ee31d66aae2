package risk

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// CircuitBreaker halts new entries after a losing streak or when the
// daily loss budget is spent, and re-arms itself after a cooldown.
type CircuitBreaker struct {
	cfg BreakerConfig
	loc *time.Location
	now func() time.Time

	mu                sync.Mutex
	status            BreakerStatus
	reason            TripReason
	consecutiveLosses int
	lastTripAt        time.Time
	dailyPnL          float64
	dayKey            string

	onChange func(from, to BreakerStatus, reason TripReason)
}

// BreakerOption customizes a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerClock overrides the time source.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) {
		if now != nil {
			b.now = now
		}
	}
}

// NewCircuitBreaker validates cfg and returns an armed breaker.
func NewCircuitBreaker(cfg BreakerConfig, opts ...BreakerOption) (*CircuitBreaker, error) {
	if cfg.MaxConsecutiveLosses < 0 {
		return nil, configErr("max_consecutive_losses", float64(cfg.MaxConsecutiveLosses), "must be >= 0")
	}
	if cfg.Cooldown < 0 {
		return nil, configErr("cooldown", cfg.Cooldown.Seconds(), "must be >= 0")
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("breaker timezone %q: %w", tz, &ConfigError{Field: "timezone", Msg: err.Error()})
	}

	b := &CircuitBreaker{
		cfg:    cfg,
		loc:    loc,
		now:    time.Now,
		status: StatusArmed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.dayKey = b.dayKeyFor(b.now())
	return b, nil
}

// OnStateChange registers a hook called (outside the lock) on every transition.
func (b *CircuitBreaker) OnStateChange(fn func(from, to BreakerStatus, reason TripReason)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// OnTradeResult records a realized trade and trips the breaker when a limit is reached.
func (b *CircuitBreaker) OnTradeResult(profit float64) {
	b.mu.Lock()
	now := b.now()
	b.rolloverLocked(now)

	if profit <= 0 {
		b.consecutiveLosses++
	} else {
		b.consecutiveLosses = 0
	}
	b.dailyPnL += profit

	var reason TripReason
	switch {
	case b.cfg.MaxConsecutiveLosses > 0 && b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses:
		reason = TripConsecutiveLosses
	case b.cfg.DailyLossLimit != 0 && b.dailyPnL <= -math.Abs(b.cfg.DailyLossLimit):
		reason = TripDailyLossLimit
	}

	tripped := false
	if reason != TripNone && b.status == StatusArmed {
		b.status = StatusTripped
		b.reason = reason
		b.lastTripAt = now
		tripped = true
	}
	losses, daily := b.consecutiveLosses, b.dailyPnL
	hook := b.onChange
	b.mu.Unlock()

	if tripped {
		log.Printf("breaker: TRIPPED reason=%s losses=%d daily_pnl=%.2f cooldown=%s",
			reason, losses, daily, b.cfg.Cooldown)
		if hook != nil {
			hook(StatusArmed, StatusTripped, reason)
		}
	}
}

// CanTrade reports whether new entries are allowed. A tripped breaker whose
// cooldown has elapsed is re-armed by this call.
func (b *CircuitBreaker) CanTrade() bool {
	b.mu.Lock()
	now := b.now()
	b.rolloverLocked(now)

	if b.status == StatusArmed {
		b.mu.Unlock()
		return true
	}
	if now.Sub(b.lastTripAt) < b.cfg.Cooldown {
		b.mu.Unlock()
		return false
	}

	prev := b.reason
	b.status = StatusArmed
	b.reason = TripNone
	b.lastTripAt = time.Time{}
	hook := b.onChange
	b.mu.Unlock()

	log.Printf("breaker: cooldown elapsed, re-armed (was %s)", prev)
	if hook != nil {
		hook(StatusTripped, StatusArmed, prev)
	}
	return true
}

// Reset forces the breaker back to ARMED. The day's realized PnL is kept.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	from := b.status
	b.status = StatusArmed
	b.reason = TripNone
	b.consecutiveLosses = 0
	b.lastTripAt = time.Time{}
	hook := b.onChange
	b.mu.Unlock()

	if from != StatusArmed {
		log.Printf("breaker: manual reset")
		if hook != nil {
			hook(from, StatusArmed, TripNone)
		}
	}
}

// Snapshot returns a copy of the breaker state.
func (b *CircuitBreaker) Snapshot() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked(b.now())
	return BreakerState{
		Status:            b.status,
		Tripped:           b.status == StatusTripped,
		Reason:            b.reason,
		ConsecutiveLosses: b.consecutiveLosses,
		LastTripAt:        b.lastTripAt,
		DailyPnL:          b.dailyPnL,
		DayKey:            b.dayKey,
	}
}

// CooldownRemaining reports how long a tripped breaker still blocks entries,
// 0 when armed or when the next CanTrade would re-arm it. It changes nothing.
func (b *CircuitBreaker) CooldownRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != StatusTripped {
		return 0
	}
	if left := b.cfg.Cooldown - b.now().Sub(b.lastTripAt); left > 0 {
		return left
	}
	return 0
}

// Config returns the breaker limits.
func (b *CircuitBreaker) Config() BreakerConfig { return b.cfg }

// rolloverLocked starts a new daily bucket when the calendar day changed.
// It never un-trips the breaker.
func (b *CircuitBreaker) rolloverLocked(now time.Time) {
	key := b.dayKeyFor(now)
	if key == b.dayKey {
		return
	}
	if b.dayKey != "" {
		log.Printf("breaker: new trading day %s (prev %s pnl=%.2f)", key, b.dayKey, b.dailyPnL)
	}
	b.dayKey = key
	b.dailyPnL = 0
}

func (b *CircuitBreaker) dayKeyFor(t time.Time) string {
	return t.In(b.loc).Format("2006-01-02")
}
