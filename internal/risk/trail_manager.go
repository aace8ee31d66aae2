package risk

import (
	"sort"
	"sync"

	"trading-gate/pkg/broker"
)

// TrailEntry binds a trailing engine to the broker order it protects.
type TrailEntry struct {
	Handle broker.OrderHandle
	Stop   *TrailingStop
}

// TrailSnapshot is the dashboard view of one trail.
type TrailSnapshot struct {
	OrderID string     `json:"order_id"`
	Symbol  string     `json:"symbol"`
	Lot     float64    `json:"lot"`
	Floor   float64    `json:"hard_floor"`
	State   TrailState `json:"state"`
}

// TrailManager keeps one trailing engine per open position, keyed by order id.
type TrailManager struct {
	mu     sync.RWMutex
	trails map[string]*TrailEntry
}

// NewTrailManager creates an empty registry.
func NewTrailManager() *TrailManager {
	return &TrailManager{trails: make(map[string]*TrailEntry)}
}

// Register tracks a new position.
func (m *TrailManager) Register(h broker.OrderHandle, ts *TrailingStop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trails[h.OrderID] = &TrailEntry{Handle: h, Stop: ts}
}

// Remove stops tracking an order. Unknown ids are ignored.
func (m *TrailManager) Remove(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trails, orderID)
}

// Get returns the entry for an order.
func (m *TrailManager) Get(orderID string) (*TrailEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.trails[orderID]
	return e, ok
}

// ForSymbol lists the trails on one instrument.
func (m *TrailManager) ForSymbol(symbol string) []*TrailEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*TrailEntry
	for _, e := range m.trails {
		if e.Handle.Symbol == symbol {
			out = append(out, e)
		}
	}
	return out
}

// Symbols lists instruments with at least one trail, sorted.
func (m *TrailManager) Symbols() []string {
	m.mu.RLock()
	seen := make(map[string]struct{})
	for _, e := range m.trails {
		seen[e.Handle.Symbol] = struct{}{}
	}
	m.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Snapshots returns every trail's state ordered by symbol then order id.
func (m *TrailManager) Snapshots() []TrailSnapshot {
	m.mu.RLock()
	out := make([]TrailSnapshot, 0, len(m.trails))
	for id, e := range m.trails {
		out = append(out, TrailSnapshot{
			OrderID: id,
			Symbol:  e.Handle.Symbol,
			Lot:     e.Handle.Lot,
			Floor:   e.Stop.HardFloor(),
			State:   e.Stop.State(),
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}

// Len returns the number of tracked trails.
func (m *TrailManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trails)
}
