package db

import "time"

// DecisionRow is one journaled entry attempt.
type DecisionRow struct {
	ID              string    `json:"id"`
	Action          string    `json:"action"`
	Reason          string    `json:"reason,omitempty"`
	Symbol          string    `json:"symbol"`
	Side            string    `json:"side"`
	Profile         string    `json:"profile,omitempty"`
	Confidence      float64   `json:"confidence"`
	Lot             *float64  `json:"lot,omitempty"`
	Price           float64   `json:"price"`
	StopLoss        float64   `json:"stop_loss"`
	TakeProfit      float64   `json:"take_profit"`
	PerTradeRiskPct *float64  `json:"per_trade_risk_pct,omitempty"`
	OrderID         string    `json:"order_id,omitempty"`
	Error           string    `json:"error,omitempty"`
	LatencyMicros   int64     `json:"latency_us"`
	DecidedAt       time.Time `json:"decided_at"`
}

// BreakerTransitionRow is one circuit breaker state change.
type BreakerTransitionRow struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// GuardFixRow is one reconciliation that found a difference.
type GuardFixRow struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	LocalCount  int       `json:"local_count"`
	BrokerCount int       `json:"broker_count"`
	Synced      bool      `json:"synced"`
	Reason      string    `json:"reason"`
	FixedAt     time.Time `json:"fixed_at"`
}

// TradeCloseRow is one settled trade fed back into the gate.
type TradeCloseRow struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Profile  string    `json:"profile,omitempty"`
	Profit   float64   `json:"profit"`
	ClosedAt time.Time `json:"closed_at"`
}

// ReasonCount aggregates decisions by action and reason.
type ReasonCount struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}
