package gate

import (
	"github.com/shopspring/decimal"

	"trading-gate/internal/signal"
	"trading-gate/pkg/broker"
)

// completeStops returns the stop and target for an entry at price. Levels the
// signal carries are kept; missing ones are derived from the exit plan
// (signal plan first, then the configured default). An order never goes out
// without a stop.
func completeStops(side broker.Side, price, atr float64, sig signal.Signal, def signal.ExitPlan, spec broker.TickSpec) (sl, tp float64, reason Reason) {
	if side != broker.SideBuy && side != broker.SideSell {
		return 0, 0, ReasonMissingSLTPSide
	}
	if !(price > 0) {
		return 0, 0, ReasonMissingSLTPPrice
	}

	plan := def
	if sig.ExitPlan != nil {
		plan = mergePlan(*sig.ExitPlan, def)
	}

	sl, tp = sig.StopLoss, sig.TakeProfit
	stopDist := 0.0
	if sl > 0 {
		stopDist = (price - sl) * side.Sign()
		if stopDist <= 0 {
			return 0, 0, ReasonMissingSLTPSide
		}
	} else {
		switch {
		case plan.StopPips > 0:
			stopDist = plan.StopPips * spec.PipSize
		case plan.StopATRMult > 0 && atr > 0:
			stopDist = plan.StopATRMult * atr
		}
		if !(stopDist > 0) {
			return 0, 0, ReasonMissingSLTPStop
		}
		sl = roundToTick(price-side.Sign()*stopDist, spec.TickSize)
	}

	if tp <= 0 {
		targetDist := 0.0
		switch {
		case plan.TargetPips > 0:
			targetDist = plan.TargetPips * spec.PipSize
		case plan.RewardRisk > 0 && stopDist > 0:
			targetDist = plan.RewardRisk * stopDist
		}
		if !(targetDist > 0) {
			return 0, 0, ReasonMissingSLTPTarget
		}
		tp = roundToTick(price+side.Sign()*targetDist, spec.TickSize)
	}

	// stop below and target above price for BUY, mirrored for SELL
	if (sl-price)*side.Sign() >= 0 || (tp-price)*side.Sign() <= 0 || sl <= 0 {
		return 0, 0, ReasonMissingSLTPSide
	}
	return sl, tp, ReasonNone
}

func mergePlan(p, def signal.ExitPlan) signal.ExitPlan {
	if p.StopPips <= 0 && p.StopATRMult <= 0 {
		p.StopPips, p.StopATRMult = def.StopPips, def.StopATRMult
	}
	if p.TargetPips <= 0 && p.RewardRisk <= 0 {
		p.TargetPips, p.RewardRisk = def.TargetPips, def.RewardRisk
	}
	return p
}

func roundToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(v).Div(t).Round(0).Mul(t).InexactFloat64()
}
