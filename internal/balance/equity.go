package balance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// EquitySource is the slice of the broker gateway that reports account equity.
type EquitySource interface {
	GetEquity(ctx context.Context) (float64, error)
}

// Snapshot is the cached equity with its age.
type Snapshot struct {
	Equity   float64   `json:"equity"`
	LastSync time.Time `json:"last_sync"`
	Stale    bool      `json:"stale"`
	LastErr  string    `json:"last_error,omitempty"`
}

// EquityCache keeps a TTL-bounded copy of broker equity so sizing does not
// hit the broker on every signal. A failed refresh falls back to the last
// good value.
type EquityCache struct {
	source EquitySource
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	equity   float64
	lastSync time.Time
	lastErr  error
}

// NewEquityCache creates a cache; ttl <= 0 disables caching.
func NewEquityCache(source EquitySource, ttl time.Duration) *EquityCache {
	return &EquityCache{source: source, ttl: ttl, now: time.Now}
}

// Get returns cached equity, refreshing it when older than the TTL.
func (c *EquityCache) Get(ctx context.Context) (float64, error) {
	c.mu.RLock()
	if c.ttl > 0 && !c.lastSync.IsZero() && c.now().Sub(c.lastSync) < c.ttl {
		v := c.equity
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	if err := c.Sync(ctx); err != nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.equity > 0 {
			log.Printf("⚠️ Equity refresh failed, using value from %s: %v", c.lastSync.Format(time.RFC3339), err)
			return c.equity, nil
		}
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.equity, nil
}

// Sync fetches equity from the broker.
func (c *EquityCache) Sync(ctx context.Context) error {
	if c.source == nil {
		return fmt.Errorf("equity: no source configured")
	}
	eq, err := c.source.GetEquity(ctx)
	if err == nil && !(eq > 0) {
		err = fmt.Errorf("equity: broker reported %.2f", eq)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err
		return err
	}
	c.equity = eq
	c.lastSync = c.now()
	c.lastErr = nil
	return nil
}

// Start refreshes equity on an interval until ctx is done.
func (c *EquityCache) Start(ctx context.Context, interval time.Duration) {
	if err := c.Sync(ctx); err != nil {
		log.Printf("❌ Equity sync error: %v", err)
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.Sync(ctx); err != nil {
					log.Printf("❌ Equity sync error: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Snapshot returns the cached value without refreshing.
func (c *EquityCache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		Equity:   c.equity,
		LastSync: c.lastSync,
		Stale:    c.ttl > 0 && c.now().Sub(c.lastSync) >= c.ttl,
	}
	if c.lastErr != nil {
		s.LastErr = c.lastErr.Error()
	}
	return s
}
