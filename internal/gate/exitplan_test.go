package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trading-gate/internal/signal"
	"trading-gate/pkg/broker"
)

func TestCompleteStops(t *testing.T) {
	spec := broker.TickSpec{TickSize: 0.01, TickValue: 1, PipSize: 0.1}
	def := signal.ExitPlan{StopATRMult: 2, RewardRisk: 1.5}

	tests := []struct {
		name           string
		side           broker.Side
		price, atr     float64
		sig            signal.Signal
		wantSL, wantTP float64
		wantReason     Reason
	}{
		{"buy from default plan", broker.SideBuy, 100, 0.5, signal.Signal{}, 99, 101.5, ReasonNone},
		{"sell from default plan", broker.SideSell, 100, 0.5, signal.Signal{}, 101, 98.5, ReasonNone},
		{"signal pips win", broker.SideBuy, 100, 0.5,
			signal.Signal{ExitPlan: &signal.ExitPlan{StopPips: 5, TargetPips: 20}}, 99.5, 102, ReasonNone},
		{"partial signal plan falls back for target", broker.SideSell, 100, 0.5,
			signal.Signal{ExitPlan: &signal.ExitPlan{StopPips: 5}}, 100.5, 99.25, ReasonNone},
		{"explicit levels kept", broker.SideBuy, 100, 0,
			signal.Signal{StopLoss: 98.5, TakeProfit: 103}, 98.5, 103, ReasonNone},
		{"explicit stop drives target", broker.SideBuy, 100, 0,
			signal.Signal{StopLoss: 99}, 99, 101.5, ReasonNone},
		{"no atr no pips", broker.SideBuy, 100, 0, signal.Signal{}, 0, 0, ReasonMissingSLTPStop},
		{"no price", broker.SideBuy, 0, 0.5, signal.Signal{}, 0, 0, ReasonMissingSLTPPrice},
		{"no side", broker.Side(""), 100, 0.5, signal.Signal{}, 0, 0, ReasonMissingSLTPSide},
		{"sell stop below price", broker.SideSell, 100, 0.5, signal.Signal{StopLoss: 99}, 0, 0, ReasonMissingSLTPSide},
		{"target on wrong side", broker.SideBuy, 100, 0.5, signal.Signal{TakeProfit: 99}, 0, 0, ReasonMissingSLTPSide},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sl, tp, reason := completeStops(tt.side, tt.price, tt.atr, tt.sig, def, spec)
			assert.Equal(t, tt.wantReason, reason)
			assert.InDelta(t, tt.wantSL, sl, 1e-9)
			assert.InDelta(t, tt.wantTP, tp, 1e-9)
		})
	}
}

func TestRunContextGenerations(t *testing.T) {
	r := NewRunContext(true)
	tok := r.Token()
	assert.True(t, r.Valid(tok))

	r.Restart()
	assert.False(t, r.Valid(tok), "restart invalidates earlier attempts")

	tok = r.Token()
	r.Disable()
	assert.False(t, r.Valid(tok))
	assert.False(t, r.Token().Enabled)

	r.Enable()
	assert.True(t, r.Valid(r.Token()))
	assert.False(t, r.Valid(tok))
}
