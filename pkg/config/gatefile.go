package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trading-gate/internal/gate"
	"trading-gate/internal/guard"
	"trading-gate/internal/risk"
	"trading-gate/internal/signal"
	"trading-gate/pkg/broker"
)

// GateFile is the YAML risk profile. Missing keys keep their defaults.
type GateFile struct {
	Timezone    string              `yaml:"timezone"`
	Breaker     BreakerSection      `yaml:"breaker"`
	Guard       GuardSection        `yaml:"guard"`
	Sizing      SizingSection       `yaml:"sizing"`
	Trailing    TrailingSection     `yaml:"trailing"`
	Entry       EntrySection        `yaml:"entry"`
	Instruments []InstrumentSection `yaml:"instruments"`
}

type BreakerSection struct {
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses"`
	DailyLossLimit       float64       `yaml:"daily_loss_limit"`
	Cooldown             time.Duration `yaml:"cooldown"`
}

type GuardSection struct {
	MaxPositions      int           `yaml:"max_positions"`
	InflightTimeout   time.Duration `yaml:"inflight_timeout"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	DesyncFix         bool          `yaml:"desync_fix"`
	Scope             string        `yaml:"scope"`
}

type SizingSection struct {
	ATRStopMult            float64 `yaml:"atr_stop_mult"`
	TargetMonthlyReturn    float64 `yaml:"target_monthly_return"`
	MaxMonthlyDD           float64 `yaml:"max_monthly_dd"`
	ExpectedTradesPerMonth float64 `yaml:"expected_trades_per_month"`
	WorstCaseTradesForDD   float64 `yaml:"worst_case_trades_for_dd"`
	AvgRMultiple           float64 `yaml:"avg_r_multiple"`
	DefaultLot             float64 `yaml:"default_lot"`
	MinLot                 float64 `yaml:"min_lot"`
	MaxLot                 float64 `yaml:"max_lot"`
	LotStep                float64 `yaml:"lot_step"`
}

type TrailingSection struct {
	Enabled             bool    `yaml:"enabled"`
	ActivateMult        float64 `yaml:"activate_mult"`
	StepMult            float64 `yaml:"step_mult"`
	LockBreakevenMult   float64 `yaml:"lock_breakeven_mult"`
	HardFloorPips       float64 `yaml:"hard_floor_pips"`
	MaxLayers           int     `yaml:"max_layers"`
	OnlyInProfit        bool    `yaml:"only_in_profit"`
	BreakevenBufferPips float64 `yaml:"breakeven_buffer_pips"`
}

type EntrySection struct {
	MinConfidence     float64         `yaml:"min_confidence"`
	LossStreakLimit   int             `yaml:"loss_streak_limit"`
	ExitPlan          signal.ExitPlan `yaml:"exit_plan"`
	SubmitTimeout     time.Duration   `yaml:"submit_timeout"`
	StopUpdateTimeout time.Duration   `yaml:"stop_update_timeout"`
}

// InstrumentSection seeds the paper broker in dry-run mode.
type InstrumentSection struct {
	Symbol    string  `yaml:"symbol"`
	Price     float64 `yaml:"price"`
	TickSize  float64 `yaml:"tick_size"`
	TickValue float64 `yaml:"tick_value"`
	PipSize   float64 `yaml:"pip_size"`
}

// DefaultGateFile mirrors the package defaults of breaker, guard and gate.
func DefaultGateFile() GateFile {
	b := risk.DefaultBreakerConfig()
	g := guard.DefaultConfig()
	c := gate.DefaultConfig()
	return GateFile{
		Timezone: b.Timezone,
		Breaker: BreakerSection{
			MaxConsecutiveLosses: b.MaxConsecutiveLosses,
			DailyLossLimit:       b.DailyLossLimit,
			Cooldown:             b.Cooldown,
		},
		Guard: GuardSection{
			MaxPositions:      g.MaxPositions,
			InflightTimeout:   g.InflightTimeout,
			ReconcileInterval: g.ReconcileInterval,
			DesyncFix:         g.DesyncFix,
			Scope:             g.Scope,
		},
		Sizing: SizingSection{
			ATRStopMult:            c.Sizing.ATRStopMult,
			TargetMonthlyReturn:    c.Sizing.TargetMonthlyReturn,
			MaxMonthlyDD:           c.Sizing.MaxMonthlyDD,
			ExpectedTradesPerMonth: c.Sizing.ExpectedTradesPerMonth,
			WorstCaseTradesForDD:   c.Sizing.WorstCaseTradesForDD,
			AvgRMultiple:           c.Sizing.AvgRMultiple,
			DefaultLot:             c.DefaultLot,
			MinLot:                 c.MinLot,
			MaxLot:                 c.MaxLot,
			LotStep:                c.LotStep,
		},
		Trailing: TrailingSection{
			Enabled:             c.TrailingEnabled,
			ActivateMult:        c.Trailing.ActivateMult,
			StepMult:            c.Trailing.StepMult,
			LockBreakevenMult:   c.Trailing.LockBreakevenMult,
			HardFloorPips:       c.Trailing.HardFloorPips,
			MaxLayers:           c.Trailing.MaxLayers,
			OnlyInProfit:        c.Trailing.OnlyInProfit,
			BreakevenBufferPips: c.Trailing.BreakevenBufferPips,
		},
		Entry: EntrySection{
			MinConfidence:     c.MinConfidence,
			LossStreakLimit:   c.LossStreakLimit,
			ExitPlan:          c.ExitPlan,
			SubmitTimeout:     c.SubmitTimeout,
			StopUpdateTimeout: c.StopUpdateTimeout,
		},
	}
}

// LoadGateFile reads a YAML risk profile over the defaults. An empty path
// returns the defaults.
func LoadGateFile(path string) (GateFile, error) {
	f := DefaultGateFile()
	if path == "" {
		return f, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return GateFile{}, fmt.Errorf("read gate file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return GateFile{}, fmt.Errorf("parse gate file %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return GateFile{}, fmt.Errorf("gate file %s: %w", path, err)
	}
	return f, nil
}

// Validate checks every section with the validation of the component it configures.
func (f GateFile) Validate() error {
	if _, err := risk.NewCircuitBreaker(f.BreakerConfig()); err != nil {
		return err
	}
	if err := f.GuardConfig().Validate(); err != nil {
		return err
	}
	if err := f.GateConfig().Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(f.Instruments))
	for _, in := range f.PaperInstruments() {
		if in.Symbol == "" {
			return fmt.Errorf("instruments: symbol is required")
		}
		if seen[in.Symbol] {
			return fmt.Errorf("instruments: duplicate symbol %s", in.Symbol)
		}
		seen[in.Symbol] = true
		if !(in.Price > 0) {
			return fmt.Errorf("instruments: %s price must be > 0", in.Symbol)
		}
		if err := in.Spec.Validate(); err != nil {
			return fmt.Errorf("instruments: %s: %w", in.Symbol, err)
		}
	}
	return nil
}

func (f GateFile) BreakerConfig() risk.BreakerConfig {
	return risk.BreakerConfig{
		MaxConsecutiveLosses: f.Breaker.MaxConsecutiveLosses,
		DailyLossLimit:       f.Breaker.DailyLossLimit,
		Cooldown:             f.Breaker.Cooldown,
		Timezone:             f.Timezone,
	}
}

func (f GateFile) GuardConfig() guard.Config {
	return guard.Config{
		MaxPositions:      f.Guard.MaxPositions,
		InflightTimeout:   f.Guard.InflightTimeout,
		ReconcileInterval: f.Guard.ReconcileInterval,
		DesyncFix:         f.Guard.DesyncFix,
		Scope:             f.Guard.Scope,
	}
}

func (f GateFile) GateConfig() gate.Config {
	return gate.Config{
		MinConfidence:   f.Entry.MinConfidence,
		LossStreakLimit: f.Entry.LossStreakLimit,
		DefaultLot:      f.Sizing.DefaultLot,
		MinLot:          f.Sizing.MinLot,
		MaxLot:          f.Sizing.MaxLot,
		LotStep:         f.Sizing.LotStep,
		Sizing: gate.SizingParams{
			ATRStopMult:            f.Sizing.ATRStopMult,
			TargetMonthlyReturn:    f.Sizing.TargetMonthlyReturn,
			MaxMonthlyDD:           f.Sizing.MaxMonthlyDD,
			ExpectedTradesPerMonth: f.Sizing.ExpectedTradesPerMonth,
			WorstCaseTradesForDD:   f.Sizing.WorstCaseTradesForDD,
			AvgRMultiple:           f.Sizing.AvgRMultiple,
		},
		ExitPlan:        f.Entry.ExitPlan,
		TrailingEnabled: f.Trailing.Enabled,
		Trailing: risk.TrailConfig{
			ActivateMult:        f.Trailing.ActivateMult,
			StepMult:            f.Trailing.StepMult,
			LockBreakevenMult:   f.Trailing.LockBreakevenMult,
			HardFloorPips:       f.Trailing.HardFloorPips,
			MaxLayers:           f.Trailing.MaxLayers,
			OnlyInProfit:        f.Trailing.OnlyInProfit,
			BreakevenBufferPips: f.Trailing.BreakevenBufferPips,
		},
		SubmitTimeout:     f.Entry.SubmitTimeout,
		StopUpdateTimeout: f.Entry.StopUpdateTimeout,
	}
}

// PaperInstruments converts the instruments section for broker.NewPaper.
func (f GateFile) PaperInstruments() []broker.Instrument {
	out := make([]broker.Instrument, 0, len(f.Instruments))
	for _, in := range f.Instruments {
		out = append(out, broker.Instrument{
			Symbol: in.Symbol,
			Price:  in.Price,
			Spec:   broker.TickSpec{TickSize: in.TickSize, TickValue: in.TickValue, PipSize: in.PipSize},
		})
	}
	return out
}
