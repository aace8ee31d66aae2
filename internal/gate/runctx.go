package gate

import (
	"log"
	"sync"
)

// RunToken is the gating context captured at the start of an attempt.
type RunToken struct {
	Enabled    bool   `json:"enabled"`
	Generation uint64 `json:"generation"`
}

// RunContext holds the trading-enabled flag and the run generation. Any
// stop or restart between the start of an attempt and its submission
// invalidates the attempt.
type RunContext struct {
	mu         sync.RWMutex
	enabled    bool
	generation uint64
}

// NewRunContext creates a run context at generation 1.
func NewRunContext(enabled bool) *RunContext {
	return &RunContext{enabled: enabled, generation: 1}
}

// Token captures the current context.
func (r *RunContext) Token() RunToken {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RunToken{Enabled: r.enabled, Generation: r.generation}
}

// Valid reports whether t still matches an enabled context.
func (r *RunContext) Valid(t RunToken) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled && t.Enabled && t.Generation == r.generation
}

// Enable allows new entries in the current generation.
func (r *RunContext) Enable() RunToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		r.enabled = true
		log.Printf("gate: trading enabled (generation %d)", r.generation)
	}
	return RunToken{Enabled: r.enabled, Generation: r.generation}
}

// Disable stops new entries and invalidates attempts in progress.
func (r *RunContext) Disable() RunToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		r.enabled = false
		r.generation++
		log.Printf("gate: trading disabled (generation %d)", r.generation)
	}
	return RunToken{Enabled: r.enabled, Generation: r.generation}
}

// Restart bumps the generation and leaves trading enabled.
func (r *RunContext) Restart() RunToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.enabled = true
	log.Printf("gate: run restarted (generation %d)", r.generation)
	return RunToken{Enabled: r.enabled, Generation: r.generation}
}
