package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	minRiskFraction = 0.0001
	maxRiskFraction = 0.10
)

// ComputeLot sizes a position so that a stop of ATRStopMult*ATR loses a fixed
// fraction of equity. The fraction is the tighter of the drawdown budget and
// the return-target budget.
func ComputeLot(in SizingInput) (LotSizingResult, error) {
	if err := in.validate(); err != nil {
		return LotSizingResult{}, err
	}

	ddBudget := math.Abs(in.MaxMonthlyDD) / in.WorstCaseTradesForDD
	targetBudget := (in.TargetMonthlyReturn / in.ExpectedTradesPerMonth) / in.AvgRMultiple
	riskFraction := clamp(math.Min(ddBudget, targetBudget), minRiskFraction, maxRiskFraction)

	perLotLoss := in.ATRStopMult * in.ATR * in.TickValue / in.TickSize
	if perLotLoss <= 0 || math.IsNaN(perLotLoss) || math.IsInf(perLotLoss, 0) {
		return LotSizingResult{}, configErr("per_lot_loss", perLotLoss, "degenerate tick configuration")
	}

	raw := in.Equity * riskFraction / perLotLoss
	lot := ClampLot(RoundLotDown(raw, in.LotStep), in.MinLot, in.MaxLot)

	return LotSizingResult{
		Lot:                     lot,
		PerTradeRiskPct:         riskFraction,
		EstMonthlyVolatilityPct: riskFraction * math.Sqrt(in.ExpectedTradesPerMonth),
		EstMaxMonthlyDdPct:      riskFraction * in.WorstCaseTradesForDD,
	}, nil
}

func (in SizingInput) validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"equity", in.Equity},
		{"atr", in.ATR},
		{"atr_stop_mult", in.ATRStopMult},
		{"target_monthly_return", in.TargetMonthlyReturn},
		{"max_monthly_dd", math.Abs(in.MaxMonthlyDD)},
		{"tick_value", in.TickValue},
		{"tick_size", in.TickSize},
		{"expected_trades_per_month", in.ExpectedTradesPerMonth},
		{"worst_case_trades_for_dd", in.WorstCaseTradesForDD},
		{"avg_r_multiple", in.AvgRMultiple},
		{"min_lot", in.MinLot},
		{"max_lot", in.MaxLot},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return configErr(p.name, p.v, "must be > 0")
		}
	}
	if in.MaxLot < in.MinLot {
		return configErr("max_lot", in.MaxLot, "must be >= min_lot")
	}
	if in.LotStep < 0 {
		return configErr("lot_step", in.LotStep, "must be >= 0")
	}
	return nil
}

// RoundLotDown truncates lot to a multiple of step. A zero step leaves lot as is.
func RoundLotDown(lot, step float64) float64 {
	if step <= 0 {
		return lot
	}
	d := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(lot).Div(d).Floor().Mul(d).InexactFloat64()
}

// ClampLot bounds lot to [minLot, maxLot].
func ClampLot(lot, minLot, maxLot float64) float64 {
	return clamp(lot, minLot, maxLot)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
