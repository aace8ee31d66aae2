package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"trading-gate/pkg/broker"
)

func TestFromMapDecodesStructPayload(t *testing.T) {
	st, err := structpb.NewStruct(map[string]any{
		"symbol":          "XAUUSD",
		"side":            "long",
		"confidence":      0.82,
		"atr":             1.4,
		"size_multiplier": 0.5,
		"profile":         "scalp",
		"exit_plan": map[string]any{
			"stop_pips":   20,
			"reward_risk": 2,
		},
	})
	require.NoError(t, err)

	sig, err := FromMap(st.AsMap())
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", sig.Symbol)
	assert.Equal(t, "LONG", sig.Side)
	assert.InDelta(t, 0.82, sig.Confidence, 1e-12)
	assert.InDelta(t, 0.5, sig.Multiplier(), 1e-12)
	require.NotNil(t, sig.ExitPlan)
	assert.Equal(t, 20.0, sig.ExitPlan.StopPips)
	assert.Equal(t, 2.0, sig.ExitPlan.RewardRisk)

	side, ok := sig.OrderSide()
	assert.True(t, ok)
	assert.Equal(t, broker.SideBuy, side)
}

func TestFromMapDefaults(t *testing.T) {
	sig, err := FromMap(map[string]any{"symbol": "EURUSD", "action": "hold"})
	require.NoError(t, err)
	_, ok := sig.OrderSide()
	assert.False(t, ok)
	assert.Equal(t, 1.0, sig.Multiplier())

	_, err = FromMap(map[string]any{"side": "BUY"})
	assert.Error(t, err)
}

type scripted struct {
	out map[string]Signal
	err map[string]error
}

func (s scripted) Next(ctx context.Context, symbol string) (Signal, error) {
	if err := s.err[symbol]; err != nil {
		return Signal{}, err
	}
	return s.out[symbol], nil
}

func TestRunnerPollSkipsFailingSymbols(t *testing.T) {
	src := scripted{
		out: map[string]Signal{"A": {Side: "BUY"}},
		err: map[string]error{"B": errors.New("worker down")},
	}
	var got []Signal
	r := &Runner{
		Source:  src,
		Symbols: []string{"A", "B"},
		Handle:  func(ctx context.Context, sig Signal) { got = append(got, sig) },
	}
	r.Poll(context.Background())

	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Symbol, "symbol filled from the polled instrument")
}

func TestMockSourceProducesValidSignals(t *testing.T) {
	m := NewMockSource(1)
	for i := 0; i < 100; i++ {
		sig, err := m.Next(context.Background(), "XAUUSD")
		require.NoError(t, err)
		assert.Contains(t, []string{"BUY", "SELL", "HOLD"}, sig.Side)
		assert.Greater(t, sig.ATR, 0.0)
		assert.GreaterOrEqual(t, sig.Confidence, 0.4)
	}
}

func TestIndicatorSourceFollowsTrend(t *testing.T) {
	prices := []float64{}
	for i := 0; i < 30; i++ {
		// rising with pullbacks deep enough to keep RSI below 70
		p := 1.1000 + float64(i)*0.0010
		if i%2 == 1 {
			p -= 0.0030
		}
		prices = append(prices, p)
	}
	i := 0
	src := NewIndicatorSource(func(ctx context.Context, symbol string) (float64, error) {
		p := prices[i]
		i++
		return p, nil
	})

	var sig Signal
	var err error
	for range prices {
		sig, err = src.Next(context.Background(), "EURUSD")
		require.NoError(t, err)
	}
	assert.Equal(t, "BUY", sig.Side)
	assert.Greater(t, sig.ATR, 0.0)
	assert.Less(t, sig.ATR, 0.01, "ATR follows the instrument's price scale")
	assert.GreaterOrEqual(t, sig.Confidence, 0.5)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
}

func TestIndicatorSourceHoldsWithoutHistory(t *testing.T) {
	src := NewIndicatorSource(func(ctx context.Context, symbol string) (float64, error) { return 2000, nil })
	sig, err := src.Next(context.Background(), "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, "HOLD", sig.Side)
	assert.Zero(t, sig.ATR)
}
