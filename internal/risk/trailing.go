package risk

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"trading-gate/pkg/broker"
)

// TrailingStop is the layered trailing-stop state machine for one open position.
// It only computes stops; submitting them is the caller's job.
type TrailingStop struct {
	cfg  TrailConfig
	spec broker.TickSpec

	mu    sync.Mutex
	state TrailState
	floor float64 // hard floor stop, fixed at creation
}

// NewTrailingStop validates the inputs and returns an inactive trail.
func NewTrailingStop(cfg TrailConfig, side broker.Side, entry, atr float64, spec broker.TickSpec) (*TrailingStop, error) {
	switch {
	case side != broker.SideBuy && side != broker.SideSell:
		return nil, &ConfigError{Field: "side", Msg: "must be BUY or SELL, got " + string(side)}
	case !(entry > 0):
		return nil, configErr("entry_price", entry, "must be > 0")
	case !(atr > 0):
		return nil, configErr("atr", atr, "must be > 0")
	case !(cfg.ActivateMult > 0):
		return nil, configErr("activate_mult", cfg.ActivateMult, "must be > 0")
	case !(cfg.StepMult > 0):
		return nil, configErr("step_mult", cfg.StepMult, "must be > 0")
	case !(cfg.LockBreakevenMult > 0):
		return nil, configErr("lock_breakeven_mult", cfg.LockBreakevenMult, "must be > 0")
	case cfg.HardFloorPips < 0:
		return nil, configErr("hard_floor_pips", cfg.HardFloorPips, "must be >= 0")
	case cfg.BreakevenBufferPips < 0:
		return nil, configErr("breakeven_buffer_pips", cfg.BreakevenBufferPips, "must be >= 0")
	case cfg.MaxLayers < 0:
		return nil, configErr("max_layers", float64(cfg.MaxLayers), "must be >= 0")
	}
	if err := spec.Validate(); err != nil {
		return nil, &ConfigError{Field: "tick_spec", Msg: err.Error()}
	}

	t := &TrailingStop{
		cfg:  cfg,
		spec: spec,
		state: TrailState{
			Side:       side,
			EntryPrice: entry,
			ATR:        atr,
		},
	}
	t.floor = t.pipsFromEntry(cfg.HardFloorPips)
	return t, nil
}

// HardFloor is the minimum lock-in stop placed on activation.
func (t *TrailingStop) HardFloor() float64 { return t.floor }

// SuggestStop advances the state machine for price and returns a new stop
// when one should be submitted. Proposals that would loosen protection or sit
// on the wrong side of price are dropped.
func (t *TrailingStop) SuggestStop(price float64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.state
	profit := price - s.EntryPrice
	if s.Side == broker.SideSell {
		profit = s.EntryPrice - price
	}
	if profit <= 0 && (!s.Activated || t.cfg.OnlyInProfit) {
		return 0, false
	}

	var proposal float64
	switch {
	case !s.Activated:
		if profit < s.ATR*t.cfg.ActivateMult {
			return 0, false
		}
		s.Activated = true
		proposal = t.floor

	case !s.BreakevenLocked:
		if profit < s.ATR*t.cfg.LockBreakevenMult {
			return 0, false
		}
		s.BreakevenLocked = true
		be := t.pipsFromEntry(t.cfg.BreakevenBufferPips)
		if s.Side == broker.SideBuy {
			proposal = math.Max(be, t.floor)
		} else {
			proposal = math.Min(be, t.floor)
		}

	default:
		step := s.ATR * t.cfg.StepMult
		should := int(math.Floor(profit / step))
		if should > t.cfg.MaxLayers {
			should = t.cfg.MaxLayers
		}
		if should <= s.Layers {
			return 0, false
		}
		earned := should - s.Layers
		s.Layers = should
		proposal = t.offsetFromPrice(price, float64(earned)*step)
	}

	if !t.acceptable(proposal, price) {
		return 0, false
	}
	stop := proposal
	s.CurrentStop = &stop
	return stop, true
}

// State returns a copy of the trailing state.
func (t *TrailingStop) State() TrailState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state
	if st.CurrentStop != nil {
		v := *st.CurrentStop
		st.CurrentStop = &v
	}
	return st
}

// SeedStop records the stop the position was opened with so later proposals
// must beat it.
func (t *TrailingStop) SeedStop(stop float64) {
	if stop <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.CurrentStop == nil || t.moreProtective(stop, *t.state.CurrentStop) {
		v := stop
		t.state.CurrentStop = &v
	}
}

func (t *TrailingStop) acceptable(stop, price float64) bool {
	s := t.state
	if s.Side == broker.SideBuy && stop >= price {
		return false
	}
	if s.Side == broker.SideSell && stop <= price {
		return false
	}
	if s.CurrentStop == nil {
		return true
	}
	return t.moreProtective(stop, *s.CurrentStop)
}

func (t *TrailingStop) moreProtective(stop, current float64) bool {
	if t.state.Side == broker.SideBuy {
		return stop > current
	}
	return stop < current
}

// pipsFromEntry is entry moved pips in the favorable direction, rounded to
// tick away from entry.
func (t *TrailingStop) pipsFromEntry(pips float64) float64 {
	entry := decimal.NewFromFloat(t.state.EntryPrice)
	dist := decimal.NewFromFloat(pips).Mul(decimal.NewFromFloat(t.spec.PipSize))
	tick := decimal.NewFromFloat(t.spec.TickSize)
	if t.state.Side == broker.SideBuy {
		return entry.Add(dist).Div(tick).Ceil().Mul(tick).InexactFloat64()
	}
	return entry.Sub(dist).Div(tick).Floor().Mul(tick).InexactFloat64()
}

// offsetFromPrice trails dist behind price, rounded to tick on the price
// side, and never behind the hard floor.
func (t *TrailingStop) offsetFromPrice(price, dist float64) float64 {
	p := decimal.NewFromFloat(price)
	d := decimal.NewFromFloat(dist)
	tick := decimal.NewFromFloat(t.spec.TickSize)
	if t.state.Side == broker.SideBuy {
		v := p.Sub(d).Div(tick).Floor().Mul(tick).InexactFloat64()
		return math.Max(v, t.floor)
	}
	v := p.Add(d).Div(tick).Ceil().Mul(tick).InexactFloat64()
	return math.Min(v, t.floor)
}
