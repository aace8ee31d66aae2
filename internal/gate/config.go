package gate

import (
	"context"
	"fmt"
	"time"

	"trading-gate/internal/events"
	"trading-gate/internal/guard"
	"trading-gate/internal/risk"
	"trading-gate/internal/signal"
	"trading-gate/pkg/broker"
)

// SizingParams are the account-level inputs of the risk sizer.
type SizingParams struct {
	ATRStopMult            float64 `json:"atr_stop_mult"`
	TargetMonthlyReturn    float64 `json:"target_monthly_return"`
	MaxMonthlyDD           float64 `json:"max_monthly_dd"`
	ExpectedTradesPerMonth float64 `json:"expected_trades_per_month"`
	WorstCaseTradesForDD   float64 `json:"worst_case_trades_for_dd"`
	AvgRMultiple           float64 `json:"avg_r_multiple"`
}

// Config drives one Gate.
type Config struct {
	MinConfidence     float64          `json:"min_confidence"`
	LossStreakLimit   int              `json:"loss_streak_limit"` // 0 disables
	DefaultLot        float64          `json:"default_lot"`       // used when ATR is unavailable, 0 = skip
	MinLot            float64          `json:"min_lot"`
	MaxLot            float64          `json:"max_lot"`
	LotStep           float64          `json:"lot_step"`
	Sizing            SizingParams     `json:"sizing"`
	ExitPlan          signal.ExitPlan  `json:"exit_plan"`
	TrailingEnabled   bool             `json:"trailing_enabled"`
	Trailing          risk.TrailConfig `json:"trailing"`
	SubmitTimeout     time.Duration    `json:"submit_timeout"`
	StopUpdateTimeout time.Duration    `json:"stop_update_timeout"`
}

// DefaultConfig returns a conservative gate configuration.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   0.55,
		LossStreakLimit: 3,
		MinLot:          0.01,
		MaxLot:          1.0,
		LotStep:         0.01,
		Sizing: SizingParams{
			ATRStopMult:            1.5,
			TargetMonthlyReturn:    0.03,
			MaxMonthlyDD:           0.10,
			ExpectedTradesPerMonth: 40,
			WorstCaseTradesForDD:   10,
			AvgRMultiple:           1.0,
		},
		ExitPlan:          signal.ExitPlan{StopATRMult: 1.5, RewardRisk: 2},
		TrailingEnabled:   true,
		Trailing:          risk.DefaultTrailConfig(),
		SubmitTimeout:     5 * time.Second,
		StopUpdateTimeout: 3 * time.Second,
	}
}

// Validate checks the static parts of the config. Sizing inputs that depend
// on live data are validated per attempt by risk.ComputeLot.
func (c Config) Validate() error {
	switch {
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("gate: min_confidence must be within [0,1], got %v", c.MinConfidence)
	case c.LossStreakLimit < 0:
		return fmt.Errorf("gate: loss_streak_limit must be >= 0, got %d", c.LossStreakLimit)
	case !(c.MinLot > 0) || c.MaxLot < c.MinLot:
		return fmt.Errorf("gate: lot bounds [%v,%v] invalid", c.MinLot, c.MaxLot)
	case c.DefaultLot < 0 || c.LotStep < 0:
		return fmt.Errorf("gate: default_lot and lot_step must be >= 0")
	case c.SubmitTimeout <= 0:
		return fmt.Errorf("gate: submit_timeout must be > 0")
	}
	return nil
}

// EquityProvider supplies account equity for sizing.
type EquityProvider interface {
	Get(ctx context.Context) (float64, error)
}

type brokerEquity struct{ b broker.Gateway }

func (e brokerEquity) Get(ctx context.Context) (float64, error) { return e.b.GetEquity(ctx) }

// Deps are the collaborators of a Gate. Broker, Breaker and Guard are required.
type Deps struct {
	Broker  broker.Gateway
	Breaker *risk.CircuitBreaker
	Guard   *guard.PositionGuard
	Streaks risk.LossStreakRecorder
	Equity  EquityProvider
	Trails  *risk.TrailManager
	Run     *RunContext
	Bus     *events.Bus
	Now     func() time.Time
}

func (d *Deps) fill() error {
	if d.Broker == nil || d.Breaker == nil || d.Guard == nil {
		return fmt.Errorf("gate: broker, breaker and guard are required")
	}
	if d.Streaks == nil {
		d.Streaks = risk.NewStreakBook()
	}
	if d.Equity == nil {
		d.Equity = brokerEquity{d.Broker}
	}
	if d.Trails == nil {
		d.Trails = risk.NewTrailManager()
	}
	if d.Run == nil {
		d.Run = NewRunContext(true)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return nil
}
