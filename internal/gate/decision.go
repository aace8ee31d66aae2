package gate

import (
	"time"

	"trading-gate/internal/risk"
)

// Action is the outcome class of an entry attempt.
type Action string

const (
	ActionEntry   Action = "ENTRY"
	ActionSkip    Action = "SKIP"
	ActionBlocked Action = "BLOCKED"
)

// Reason names why an attempt did not enter. Values are stable; dashboards
// and the journal key on them.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoSignal          Reason = "no_signal"
	ReasonLowConfidence     Reason = "low_confidence"
	ReasonTradingDisabled   Reason = "trading_disabled"
	ReasonCircuitBreaker    Reason = "circuit_breaker"
	ReasonMaxPositions      Reason = "max_positions_reached"
	ReasonInflightOrders    Reason = "inflight_orders"
	ReasonLossStreak        Reason = "loss_streak_limit"
	ReasonEntryInflight     Reason = "entry_inflight"
	ReasonConfigError       Reason = "config_error"
	ReasonBrokerError       Reason = "broker_error"
	ReasonMissingSLTPPrice  Reason = "missing_sl_tp_price"
	ReasonMissingSLTPStop   Reason = "missing_sl_tp_stop"
	ReasonMissingSLTPTarget Reason = "missing_sl_tp_target"
	ReasonMissingSLTPSide   Reason = "missing_sl_tp_side"
	ReasonRunIDStale        Reason = "run_id_stale"
	ReasonSubmitFailed      Reason = "submit_failed"
	ReasonSubmitTimeout     Reason = "submit_timeout"
)

// EntryDecision is the single record emitted for every entry attempt.
type EntryDecision struct {
	ID         string                `json:"id"`
	Action     Action                `json:"action"`
	Reason     Reason                `json:"reason,omitempty"`
	Lot        *float64              `json:"lot,omitempty"`
	Symbol     string                `json:"symbol"`
	Side       string                `json:"side"`
	Profile    string                `json:"profile,omitempty"`
	Confidence float64               `json:"confidence"`
	Price      float64               `json:"price,omitempty"`
	StopLoss   float64               `json:"stop_loss,omitempty"`
	TakeProfit float64               `json:"take_profit,omitempty"`
	Sizing     *risk.LotSizingResult `json:"sizing,omitempty"`
	OrderID    string                `json:"order_id,omitempty"`
	Err        string                `json:"error,omitempty"`
	Latency    time.Duration         `json:"latency_ns"`
	At         time.Time             `json:"at"`
}

// Entered reports whether an order was placed.
func (d EntryDecision) Entered() bool { return d.Action == ActionEntry }

func (d *EntryDecision) deny(a Action, r Reason) EntryDecision {
	d.Action = a
	d.Reason = r
	return *d
}

// TradeResult is a settled trade fed back from the broker side.
type TradeResult struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol" binding:"required"`
	Profile  string    `json:"profile,omitempty"`
	Profit   float64   `json:"profit"`
	ClosedAt time.Time `json:"closed_at"`
}
