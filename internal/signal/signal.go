package signal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trading-gate/pkg/broker"
)

// ExitPlan tells the gate how to derive stop and target when a signal does
// not carry explicit levels. Pip distances win over multipliers.
type ExitPlan struct {
	StopPips    float64 `json:"stop_pips,omitempty" yaml:"stop_pips"`
	TargetPips  float64 `json:"target_pips,omitempty" yaml:"target_pips"`
	StopATRMult float64 `json:"stop_atr_mult,omitempty" yaml:"stop_atr_mult"`
	RewardRisk  float64 `json:"reward_risk,omitempty" yaml:"reward_risk"`
}

// Signal is one model output for one instrument.
type Signal struct {
	Symbol         string    `json:"symbol" binding:"required"`
	Side           string    `json:"side" binding:"required"` // BUY, SELL, HOLD
	Confidence     float64   `json:"confidence"`
	ATR            float64   `json:"atr"`
	SizeMultiplier float64   `json:"size_multiplier,omitempty"` // 0 = 1.0
	Profile        string    `json:"profile,omitempty"`
	StopLoss       float64   `json:"stop_loss,omitempty"`
	TakeProfit     float64   `json:"take_profit,omitempty"`
	ExitPlan       *ExitPlan `json:"exit_plan,omitempty"`
	At             time.Time `json:"at"`
}

// OrderSide returns the order side, false for HOLD or anything unknown.
func (s Signal) OrderSide() (broker.Side, bool) {
	return broker.ParseSide(s.Side)
}

// Multiplier returns the size multiplier with 0 treated as 1.
func (s Signal) Multiplier() float64 {
	if s.SizeMultiplier <= 0 {
		return 1
	}
	return s.SizeMultiplier
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s conf=%.2f atr=%.5f profile=%s", s.Symbol, strings.ToUpper(s.Side), s.Confidence, s.ATR, s.Profile)
}

// Source produces the next signal for an instrument.
type Source interface {
	Next(ctx context.Context, symbol string) (Signal, error)
}

// FromMap decodes a loosely typed payload (JSON object, protobuf Struct).
func FromMap(m map[string]any) (Signal, error) {
	sig := Signal{
		Symbol:         str(m, "symbol"),
		Side:           strings.ToUpper(str(m, "side")),
		Confidence:     num(m, "confidence"),
		ATR:            num(m, "atr"),
		SizeMultiplier: num(m, "size_multiplier"),
		Profile:        str(m, "profile"),
		StopLoss:       num(m, "stop_loss"),
		TakeProfit:     num(m, "take_profit"),
		At:             time.Now(),
	}
	if sig.Side == "" {
		sig.Side = strings.ToUpper(str(m, "action"))
	}
	if plan, ok := m["exit_plan"].(map[string]any); ok {
		sig.ExitPlan = &ExitPlan{
			StopPips:    num(plan, "stop_pips"),
			TargetPips:  num(plan, "target_pips"),
			StopATRMult: num(plan, "stop_atr_mult"),
			RewardRisk:  num(plan, "reward_risk"),
		}
	}
	if sig.Symbol == "" {
		return Signal{}, fmt.Errorf("signal: missing symbol")
	}
	if sig.Side == "" {
		sig.Side = "HOLD"
	}
	return sig, nil
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func num(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
