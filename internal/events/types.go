package events

import "time"

// Event enumerates topics published by the gating core.
type Event string

const (
	EventPriceTick     Event = "price_tick"
	EventEntryDecision Event = "gate.entry_decision"
	EventBreakerState  Event = "risk.breaker_state"
	EventGuardFix      Event = "guard.fix"
	EventTrailUpdate   Event = "trail.update"
	EventTradeClosed   Event = "trade.closed"
)

// PriceTick is a quote observed for an instrument.
type PriceTick struct {
	Symbol string
	Price  float64
	At     time.Time
}

// BreakerChange is published on every circuit breaker transition.
type BreakerChange struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// GuardFix is published when reconciliation finds the local count differs from the broker.
type GuardFix struct {
	Symbol      string    `json:"symbol"`
	LocalCount  int       `json:"local_count"`
	BrokerCount int       `json:"broker_count"`
	Synced      bool      `json:"synced"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}

// TrailUpdate is published when a trailing stop proposes a tighter stop.
type TrailUpdate struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Stop      float64   `json:"stop"`
	Layers    int       `json:"layers"`
	Submitted bool      `json:"submitted"`
	Err       string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// TradeClosed is published when a settled trade is fed back into the gate.
type TradeClosed struct {
	OrderID string    `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Profile string    `json:"profile,omitempty"`
	Profit  float64   `json:"profit"`
	At      time.Time `json:"at"`
}
