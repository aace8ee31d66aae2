package monitor

import (
	"sync"

	"trading-gate/internal/gate"
)

// DecisionRing keeps the most recent entry decisions in memory.
type DecisionRing struct {
	mu   sync.RWMutex
	buf  []gate.EntryDecision
	next int
	full bool
}

func NewDecisionRing(size int) *DecisionRing {
	if size <= 0 {
		size = 200
	}
	return &DecisionRing{buf: make([]gate.EntryDecision, size)}
}

func (r *DecisionRing) Add(d gate.EntryDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = d
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit decisions, newest first. limit <= 0 returns all.
func (r *DecisionRing) Recent(limit int) []gate.EntryDecision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]gate.EntryDecision, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

func (r *DecisionRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}
