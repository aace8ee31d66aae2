package risk

import (
	"fmt"
	"time"

	"trading-gate/pkg/broker"
)

// BreakerStatus is the circuit breaker state.
type BreakerStatus int

const (
	StatusArmed BreakerStatus = iota
	StatusTripped
)

func (s BreakerStatus) String() string {
	switch s {
	case StatusArmed:
		return "ARMED"
	case StatusTripped:
		return "TRIPPED"
	default:
		return "UNKNOWN"
	}
}

func (s BreakerStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *BreakerStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ARMED":
		*s = StatusArmed
	case "TRIPPED":
		*s = StatusTripped
	default:
		return fmt.Errorf("risk: unknown breaker status %q", b)
	}
	return nil
}

// TripReason names why the breaker tripped. Empty means none.
type TripReason string

const (
	TripNone              TripReason = ""
	TripConsecutiveLosses TripReason = "consecutive_losses"
	TripDailyLossLimit    TripReason = "daily_loss_limit"
)

// BreakerConfig defines circuit breaker limits.
type BreakerConfig struct {
	MaxConsecutiveLosses int           `json:"max_consecutive_losses"` // 0 disables
	DailyLossLimit       float64       `json:"daily_loss_limit"`       // 0 disables; sign ignored
	Cooldown             time.Duration `json:"cooldown"`
	Timezone             string        `json:"timezone"` // IANA name for the daily bucket, "" = UTC
}

// DefaultBreakerConfig returns conservative defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxConsecutiveLosses: 3,
		DailyLossLimit:       500,
		Cooldown:             30 * time.Minute,
		Timezone:             "UTC",
	}
}

// BreakerState is a point-in-time copy of the breaker.
type BreakerState struct {
	Status            BreakerStatus `json:"status"`
	Tripped           bool          `json:"tripped"`
	Reason            TripReason    `json:"reason,omitempty"`
	ConsecutiveLosses int           `json:"consecutive_losses"`
	LastTripAt        time.Time     `json:"last_trip_at"`
	DailyPnL          float64       `json:"daily_pnl"`
	DayKey            string        `json:"day_key"`
}

// TrailConfig holds ATR multipliers and limits for the layered trailing stop.
type TrailConfig struct {
	ActivateMult        float64 `json:"activate_mult"`
	StepMult            float64 `json:"step_mult"`
	LockBreakevenMult   float64 `json:"lock_breakeven_mult"`
	HardFloorPips       float64 `json:"hard_floor_pips"`
	MaxLayers           int     `json:"max_layers"`
	OnlyInProfit        bool    `json:"only_in_profit"`
	BreakevenBufferPips float64 `json:"breakeven_buffer_pips"`
}

// DefaultTrailConfig returns the trailing settings used when none are configured.
func DefaultTrailConfig() TrailConfig {
	return TrailConfig{
		ActivateMult:      1.0,
		StepMult:          0.5,
		LockBreakevenMult: 1.5,
		HardFloorPips:     2,
		MaxLayers:         5,
		OnlyInProfit:      true,
	}
}

// TrailState is the per-position trailing state exposed to dashboards.
type TrailState struct {
	Side            broker.Side `json:"side"`
	EntryPrice      float64     `json:"entry_price"`
	ATR             float64     `json:"atr"`
	Activated       bool        `json:"activated"`
	BreakevenLocked bool        `json:"breakeven_locked"`
	Layers          int         `json:"layers"`
	CurrentStop     *float64    `json:"current_stop,omitempty"`
}

// SizingInput carries everything ComputeLot needs.
type SizingInput struct {
	Equity                 float64 `json:"equity"`
	ATR                    float64 `json:"atr"`
	ATRStopMult            float64 `json:"atr_stop_mult"`
	TargetMonthlyReturn    float64 `json:"target_monthly_return"`
	MaxMonthlyDD           float64 `json:"max_monthly_dd"`
	TickValue              float64 `json:"tick_value"`
	TickSize               float64 `json:"tick_size"`
	ExpectedTradesPerMonth float64 `json:"expected_trades_per_month"`
	WorstCaseTradesForDD   float64 `json:"worst_case_trades_for_dd"`
	AvgRMultiple           float64 `json:"avg_r_multiple"`
	MinLot                 float64 `json:"min_lot"`
	MaxLot                 float64 `json:"max_lot"`
	LotStep                float64 `json:"lot_step"` // 0 = no rounding
}

// LotSizingResult is the sizer output.
type LotSizingResult struct {
	Lot                     float64 `json:"lot"`
	PerTradeRiskPct         float64 `json:"per_trade_risk_pct"`
	EstMonthlyVolatilityPct float64 `json:"est_monthly_volatility_pct"`
	EstMaxMonthlyDdPct      float64 `json:"est_max_monthly_dd_pct"`
}
