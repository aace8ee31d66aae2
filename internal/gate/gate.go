package gate

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"trading-gate/internal/events"
	"trading-gate/internal/guard"
	"trading-gate/internal/risk"
	"trading-gate/internal/signal"
	"trading-gate/pkg/broker"
)

// Gate decides, for each signal, whether to open a position, how large and
// with which protective levels, and keeps guard, breaker and trailing stops
// in step with trade results.
type Gate struct {
	deps Deps
	cfg  Config

	entryMu       sync.Mutex
	entryInflight bool

	profileMu sync.Mutex
	profiles  map[string]string // order id -> profile of the entry
}

// New validates cfg and wires the collaborators.
func New(deps Deps, cfg Config) (*Gate, error) {
	if err := deps.fill(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gate{deps: deps, cfg: cfg, profiles: make(map[string]string)}
	if deps.Bus != nil {
		g.publishTransitions()
	}
	return g, nil
}

// publishTransitions forwards breaker transitions and guard fixes to the bus.
// It takes over the single hook slot on both components.
func (g *Gate) publishTransitions() {
	bus := g.deps.Bus
	g.deps.Breaker.OnStateChange(func(from, to risk.BreakerStatus, reason risk.TripReason) {
		bus.Publish(events.EventBreakerState, events.BreakerChange{
			From:   from.String(),
			To:     to.String(),
			Reason: string(reason),
			At:     g.deps.Now(),
		})
	})
	g.deps.Guard.OnFix(func(r guard.Report) {
		bus.Publish(events.EventGuardFix, events.GuardFix{
			Symbol:      r.Symbol,
			LocalCount:  r.LocalCount,
			BrokerCount: r.BrokerCount,
			Synced:      r.Synced,
			Reason:      r.Reason,
			At:          r.Timestamp,
		})
	})
}

// Config returns the gate configuration.
func (g *Gate) Config() Config { return g.cfg }

// Run exposes the run context for operator control.
func (g *Gate) Run() *RunContext { return g.deps.Run }

// Trails exposes the trailing-stop registry.
func (g *Gate) Trails() *risk.TrailManager { return g.deps.Trails }

// Breaker exposes the circuit breaker.
func (g *Gate) Breaker() *risk.CircuitBreaker { return g.deps.Breaker }

// Guard exposes the position guard.
func (g *Gate) Guard() *guard.PositionGuard { return g.deps.Guard }

func (g *Gate) tryAcquireEntry() bool {
	g.entryMu.Lock()
	defer g.entryMu.Unlock()
	if g.entryInflight {
		return false
	}
	g.entryInflight = true
	return true
}

func (g *Gate) releaseEntry() {
	g.entryMu.Lock()
	g.entryInflight = false
	g.entryMu.Unlock()
}

// EntryInflight reports whether an entry submission is in progress.
func (g *Gate) EntryInflight() bool {
	g.entryMu.Lock()
	defer g.entryMu.Unlock()
	return g.entryInflight
}

// Evaluate runs one entry attempt. Denials are returned as decisions, never
// as errors; every decision is logged and published.
func (g *Gate) Evaluate(ctx context.Context, sig signal.Signal) EntryDecision {
	start := g.deps.Now()
	d := &EntryDecision{
		ID:         uuid.NewString(),
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Profile:    sig.Profile,
		Confidence: sig.Confidence,
		At:         start,
	}
	out := g.evaluate(ctx, sig, d)
	out.Latency = g.deps.Now().Sub(start)
	g.report(out)
	return out
}

func (g *Gate) evaluate(ctx context.Context, sig signal.Signal, d *EntryDecision) EntryDecision {
	side, ok := sig.OrderSide()
	if !ok || sig.Symbol == "" {
		return d.deny(ActionSkip, ReasonNoSignal)
	}
	if sig.Confidence < g.cfg.MinConfidence {
		return d.deny(ActionSkip, ReasonLowConfidence)
	}
	token := g.deps.Run.Token()
	if !token.Enabled {
		return d.deny(ActionBlocked, ReasonTradingDisabled)
	}

	if !g.deps.Breaker.CanTrade() {
		return d.deny(ActionBlocked, ReasonCircuitBreaker)
	}
	if !g.deps.Guard.CanOpen() {
		return d.deny(ActionBlocked, ReasonMaxPositions)
	}
	key := guard.InflightKey(sig.Symbol)
	if g.deps.Guard.HasInflight(key) {
		return d.deny(ActionBlocked, ReasonInflightOrders)
	}
	if limit := g.cfg.LossStreakLimit; limit > 0 && g.deps.Streaks.GetConsecutiveLosses(sig.Profile, sig.Symbol) >= limit {
		return d.deny(ActionBlocked, ReasonLossStreak)
	}

	if !g.tryAcquireEntry() {
		return d.deny(ActionBlocked, ReasonEntryInflight)
	}
	defer g.releaseEntry()

	// a previous holder may have filled between the checks above and here
	if !g.deps.Guard.CanOpen() {
		return d.deny(ActionBlocked, ReasonMaxPositions)
	}
	if g.deps.Guard.HasInflight(key) {
		return d.deny(ActionBlocked, ReasonInflightOrders)
	}

	spec, err := g.deps.Broker.GetTickSpec(ctx, sig.Symbol)
	if err != nil {
		d.Err = err.Error()
		return d.deny(ActionSkip, ReasonBrokerError)
	}

	lot, reason := g.size(ctx, sig, spec, d)
	if reason != ReasonNone {
		return d.deny(ActionSkip, reason)
	}

	price, err := g.deps.Broker.GetCurrentPrice(ctx, sig.Symbol, side)
	if err != nil {
		d.Err = err.Error()
		return d.deny(ActionBlocked, ReasonMissingSLTPPrice)
	}
	d.Price = price
	sl, tp, reason := completeStops(side, price, sig.ATR, sig, g.cfg.ExitPlan, spec)
	if reason != ReasonNone {
		return d.deny(ActionBlocked, reason)
	}
	d.StopLoss, d.TakeProfit = sl, tp

	if !g.deps.Run.Valid(token) {
		return d.deny(ActionBlocked, ReasonRunIDStale)
	}

	// a stop update may have claimed the instrument while we priced the order
	if !g.deps.Guard.TryMarkInflight(key) {
		return d.deny(ActionBlocked, ReasonInflightOrders)
	}
	defer g.deps.Guard.ClearInflight(key)

	submitCtx, cancel := context.WithTimeout(ctx, g.cfg.SubmitTimeout)
	defer cancel()
	h, err := g.deps.Broker.SubmitMarketOrder(submitCtx, broker.MarketOrder{
		Symbol:     sig.Symbol,
		Side:       side,
		Lot:        lot,
		StopLoss:   sl,
		TakeProfit: tp,
		ClientID:   d.ID,
	})
	if err == nil && h.Status == broker.StatusRejected {
		err = &broker.Error{Op: "submit", Msg: "order rejected", Err: broker.ErrRejected}
	}
	if err != nil {
		d.Err = err.Error()
		if broker.IsNoAnswer(err) || errors.Is(err, context.DeadlineExceeded) || submitCtx.Err() != nil {
			// the order may still have been filled; only the broker can say
			g.reconcile(ctx)
			return d.deny(ActionSkip, ReasonSubmitTimeout)
		}
		return d.deny(ActionSkip, ReasonSubmitFailed)
	}

	g.deps.Guard.RecordOpened()
	d.OrderID = h.OrderID
	g.rememberProfile(h.OrderID, sig.Profile)
	g.registerTrail(h, side, price, sig.ATR, sl, spec)
	g.reconcile(ctx)

	d.Action = ActionEntry
	d.Lot = &lot
	return *d
}

// size computes the lot for sig. The configured bounds are applied last,
// after the signal's multiplier.
func (g *Gate) size(ctx context.Context, sig signal.Signal, spec broker.TickSpec, d *EntryDecision) (float64, Reason) {
	var lot float64
	if sig.ATR > 0 {
		equity, err := g.deps.Equity.Get(ctx)
		if err != nil {
			d.Err = err.Error()
			return 0, ReasonBrokerError
		}
		res, err := risk.ComputeLot(risk.SizingInput{
			Equity:                 equity,
			ATR:                    sig.ATR,
			ATRStopMult:            g.cfg.Sizing.ATRStopMult,
			TargetMonthlyReturn:    g.cfg.Sizing.TargetMonthlyReturn,
			MaxMonthlyDD:           g.cfg.Sizing.MaxMonthlyDD,
			TickValue:              spec.TickValue,
			TickSize:               spec.TickSize,
			ExpectedTradesPerMonth: g.cfg.Sizing.ExpectedTradesPerMonth,
			WorstCaseTradesForDD:   g.cfg.Sizing.WorstCaseTradesForDD,
			AvgRMultiple:           g.cfg.Sizing.AvgRMultiple,
			MinLot:                 g.cfg.MinLot,
			MaxLot:                 g.cfg.MaxLot,
			LotStep:                g.cfg.LotStep,
		})
		if err != nil {
			d.Err = err.Error()
			return 0, ReasonConfigError
		}
		d.Sizing = &res
		lot = res.Lot
	} else {
		if g.cfg.DefaultLot <= 0 {
			d.Err = "atr unavailable and no default lot configured"
			return 0, ReasonConfigError
		}
		lot = g.cfg.DefaultLot
	}

	lot *= sig.Multiplier()
	lot = risk.RoundLotDown(lot, g.cfg.LotStep)
	return risk.ClampLot(lot, g.cfg.MinLot, g.cfg.MaxLot), ReasonNone
}

func (g *Gate) registerTrail(h broker.OrderHandle, side broker.Side, price, atr, sl float64, spec broker.TickSpec) {
	if !g.cfg.TrailingEnabled {
		return
	}
	entry := h.FillPrice
	if entry <= 0 {
		entry = price
	}
	ts, err := risk.NewTrailingStop(g.cfg.Trailing, side, entry, atr, spec)
	if err != nil {
		log.Printf("gate: trailing stop not armed for %s: %v", h.OrderID, err)
		return
	}
	ts.SeedStop(sl)
	g.deps.Trails.Register(h, ts)
}

func (g *Gate) reconcile(ctx context.Context) {
	if _, err := g.deps.Guard.ForceReconcile(ctx, g.deps.Guard.Config().Scope); err != nil {
		log.Printf("gate: reconcile after submit failed: %v", err)
	}
}

func (g *Gate) report(d EntryDecision) {
	switch d.Action {
	case ActionEntry:
		log.Printf("gate: ENTRY %s %s lot=%.2f sl=%.5f tp=%.5f order=%s (%s)",
			d.Side, d.Symbol, *d.Lot, d.StopLoss, d.TakeProfit, d.OrderID, d.Latency.Round(time.Microsecond))
	case ActionSkip, ActionBlocked:
		if d.Err != "" {
			log.Printf("gate: %s %s %s reason=%s err=%s", d.Action, d.Side, d.Symbol, d.Reason, d.Err)
		} else {
			log.Printf("gate: %s %s %s reason=%s", d.Action, d.Side, d.Symbol, d.Reason)
		}
	}
	if g.deps.Bus != nil {
		g.deps.Bus.Publish(events.EventEntryDecision, d)
	}
}

// OnTradeClosed feeds a settled trade into the breaker, the streak tracker,
// the guard and the trailing registry.
func (g *Gate) OnTradeClosed(ctx context.Context, tr TradeResult) {
	if tr.ClosedAt.IsZero() {
		tr.ClosedAt = g.deps.Now()
	}
	if opened := g.takeProfile(tr.OrderID); tr.Profile == "" {
		tr.Profile = opened
	}
	g.deps.Breaker.OnTradeResult(tr.Profit)
	g.deps.Streaks.Record(tr.Profile, tr.Symbol, tr.Profit)
	g.deps.Guard.RecordClosed()
	if tr.OrderID != "" {
		g.deps.Trails.Remove(tr.OrderID)
	}

	log.Printf("gate: trade closed %s %s profit=%.2f", tr.Symbol, tr.OrderID, tr.Profit)
	if g.deps.Bus != nil {
		g.deps.Bus.Publish(events.EventTradeClosed, events.TradeClosed{
			OrderID: tr.OrderID,
			Symbol:  tr.Symbol,
			Profile: tr.Profile,
			Profit:  tr.Profit,
			At:      tr.ClosedAt,
		})
	}

	// RecordClosed may double count against a reconcile that already saw the close
	if _, err := g.deps.Guard.ForceReconcile(ctx, g.deps.Guard.Config().Scope); err != nil {
		log.Printf("gate: reconcile after close failed: %v", err)
	}
}

// rememberProfile keeps the strategy profile of an entered order until its
// close is reported; broker settlements do not carry it.
func (g *Gate) rememberProfile(orderID, profile string) {
	if orderID == "" || profile == "" {
		return
	}
	g.profileMu.Lock()
	g.profiles[orderID] = profile
	g.profileMu.Unlock()
}

func (g *Gate) takeProfile(orderID string) string {
	if orderID == "" {
		return ""
	}
	g.profileMu.Lock()
	defer g.profileMu.Unlock()
	p := g.profiles[orderID]
	delete(g.profiles, orderID)
	return p
}

// OnTick runs the trailing path for symbol at price. Stop updates are best
// effort: a failed submission leaves the previous stop in force.
func (g *Gate) OnTick(ctx context.Context, symbol string, price float64) []events.TrailUpdate {
	key := guard.InflightKey(symbol)
	var out []events.TrailUpdate
	for _, e := range g.deps.Trails.ForSymbol(symbol) {
		// claim the slot before consulting the engine so a skipped tick
		// does not consume a layer
		if !g.deps.Guard.TryMarkInflight(key) {
			break
		}
		stop, ok := e.Stop.SuggestStop(price)
		if !ok {
			g.deps.Guard.ClearInflight(key)
			continue
		}
		u := events.TrailUpdate{
			OrderID: e.Handle.OrderID,
			Symbol:  symbol,
			Price:   price,
			Stop:    stop,
			Layers:  e.Stop.State().Layers,
			At:      g.deps.Now(),
		}

		err := g.submitStop(ctx, e.Handle, stop)
		g.deps.Guard.ClearInflight(key)

		if err != nil {
			u.Err = err.Error()
			log.Printf("gate: stop update %s -> %.5f failed, previous stop stays: %v", e.Handle.OrderID, stop, err)
		} else {
			u.Submitted = true
			log.Printf("gate: stop update %s %s -> %.5f (layers=%d)", symbol, e.Handle.OrderID, stop, u.Layers)
		}
		if g.deps.Bus != nil {
			g.deps.Bus.Publish(events.EventTrailUpdate, u)
		}
		out = append(out, u)
	}
	return out
}

func (g *Gate) submitStop(ctx context.Context, h broker.OrderHandle, stop float64) error {
	timeout := g.cfg.StopUpdateTimeout
	if timeout <= 0 {
		timeout = g.cfg.SubmitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return g.deps.Broker.SubmitStopUpdate(ctx, h, stop)
}

// Status is the operator view of the gate.
type Status struct {
	Run           RunToken             `json:"run"`
	Breaker       risk.BreakerState    `json:"breaker"`
	Guard         guard.State          `json:"guard"`
	EntryInflight bool                 `json:"entry_inflight"`
	Trails        []risk.TrailSnapshot `json:"trails"`
}

// Status returns a snapshot of every gating component.
func (g *Gate) Status() Status {
	return Status{
		Run:           g.deps.Run.Token(),
		Breaker:       g.deps.Breaker.Snapshot(),
		Guard:         g.deps.Guard.Snapshot(),
		EntryInflight: g.EntryInflight(),
		Trails:        g.deps.Trails.Snapshots(),
	}
}
