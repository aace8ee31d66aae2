package signal

import (
	"context"
	"math"
	"time"

	"trading-gate/internal/indicators"
)

// PriceFunc returns the current price of an instrument.
type PriceFunc func(ctx context.Context, symbol string) (float64, error)

// IndicatorSource is a rule-of-thumb model for dry runs: it samples prices on
// every call and follows the moving-average cross, filtered by RSI. ATR comes
// from the same price history so stops scale with each instrument.
type IndicatorSource struct {
	Price   PriceFunc
	Engine  *indicators.Engine
	Profile string
}

// NewIndicatorSource uses a 5/20 MA cross, RSI(14) and ATR(14).
func NewIndicatorSource(price PriceFunc) *IndicatorSource {
	return &IndicatorSource{
		Price:  price,
		Engine: indicators.NewEngine(5, 20, 14, 14, 50),
	}
}

func (s *IndicatorSource) Next(ctx context.Context, symbol string) (Signal, error) {
	px, err := s.Price(ctx, symbol)
	if err != nil {
		return Signal{}, err
	}
	v := s.Engine.Update(symbol, px)
	sig := Signal{Symbol: symbol, Side: "HOLD", ATR: v.ATR, Profile: s.Profile, At: time.Now()}
	if !v.Ready() {
		return sig, nil
	}

	spread := v.SMAShort - v.SMALong
	switch {
	case spread > 0 && v.RSI < 70:
		sig.Side = "BUY"
	case spread < 0 && v.RSI > 30:
		sig.Side = "SELL"
	default:
		return sig, nil
	}
	// a cross one ATR wide is full conviction
	sig.Confidence = math.Min(1, 0.5+0.5*math.Abs(spread)/v.ATR)
	return sig, nil
}
