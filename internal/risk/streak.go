package risk

import "sync"

// LossStreakTracker reports the current losing streak of a strategy profile on
// an instrument. It is updated from settlement events outside the gate.
type LossStreakTracker interface {
	GetConsecutiveLosses(profile, symbol string) int
}

// LossStreakRecorder is a tracker that also takes settled trades.
type LossStreakRecorder interface {
	LossStreakTracker
	Record(profile, symbol string, profit float64) int
}

// StreakBook is the in-memory LossStreakRecorder.
type StreakBook struct {
	mu      sync.RWMutex
	streaks map[string]int // key: streakKey(profile, symbol)
}

// NewStreakBook creates an empty tracker.
func NewStreakBook() *StreakBook {
	return &StreakBook{streaks: make(map[string]int)}
}

func streakKey(profile, symbol string) string {
	if profile == "" {
		return symbol
	}
	return profile + ":" + symbol
}

// Record applies a settled trade: a non-positive profit extends the streak,
// a win clears it.
func (b *StreakBook) Record(profile, symbol string, profit float64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := streakKey(profile, symbol)
	if profit > 0 {
		delete(b.streaks, key)
		return 0
	}
	b.streaks[key]++
	return b.streaks[key]
}

func (b *StreakBook) GetConsecutiveLosses(profile, symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.streaks[streakKey(profile, symbol)]
}

// Reset clears one streak.
func (b *StreakBook) Reset(profile, symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.streaks, streakKey(profile, symbol))
}

// All returns a copy of every non-zero streak.
func (b *StreakBook) All() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(b.streaks))
	for k, v := range b.streaks {
		out[k] = v
	}
	return out
}
