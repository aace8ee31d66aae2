package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-gate/internal/events"
	"trading-gate/internal/guard"
	"trading-gate/internal/risk"
	"trading-gate/internal/signal"
	"trading-gate/pkg/broker"
)

type fakeBroker struct {
	mu        sync.Mutex
	open      int
	spec      broker.TickSpec
	price     float64
	equity    float64
	priceErr  error
	submitErr error
	stopErr   error
	onPrice   func()
	onSubmit  func(ctx context.Context) error

	submits     int
	stopUpdates []float64
	countCalls  int
	lastOrder   broker.MarketOrder
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		spec:   broker.TickSpec{TickSize: 0.01, TickValue: 100, PipSize: 0.01},
		price:  100,
		equity: 1_000_000,
	}
}

func (f *fakeBroker) GetOpenPositionCount(ctx context.Context, symbol string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	return f.open, nil
}

func (f *fakeBroker) SubmitMarketOrder(ctx context.Context, req broker.MarketOrder) (broker.OrderHandle, error) {
	f.mu.Lock()
	f.submits++
	n := f.submits
	f.lastOrder = req
	hook := f.onSubmit
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return broker.OrderHandle{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return broker.OrderHandle{}, f.submitErr
	}
	f.open++
	return broker.OrderHandle{
		OrderID:   fmt.Sprintf("ord-%d", n),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Lot:       req.Lot,
		FillPrice: f.price,
		Status:    broker.StatusFilled,
		FilledAt:  time.Now(),
	}, nil
}

func (f *fakeBroker) SubmitStopUpdate(ctx context.Context, h broker.OrderHandle, newStop float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopUpdates = append(f.stopUpdates, newStop)
	return nil
}

func (f *fakeBroker) GetEquity(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.equity, nil
}

func (f *fakeBroker) GetTickSpec(ctx context.Context, symbol string) (broker.TickSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spec, nil
}

func (f *fakeBroker) GetCurrentPrice(ctx context.Context, symbol string, side broker.Side) (float64, error) {
	f.mu.Lock()
	hook := f.onPrice
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, f.priceErr
}

func (f *fakeBroker) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

type harness struct {
	broker  *fakeBroker
	breaker *risk.CircuitBreaker
	guard   *guard.PositionGuard
	streaks *risk.StreakBook
	bus     *events.Bus
	gate    *Gate
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.5
	cfg.LossStreakLimit = 3
	cfg.MinLot = 0.01
	cfg.MaxLot = 10
	cfg.LotStep = 0.01
	cfg.Sizing = SizingParams{
		ATRStopMult:            1.0,
		TargetMonthlyReturn:    0.03,
		MaxMonthlyDD:           0.20,
		ExpectedTradesPerMonth: 40,
		WorstCaseTradesForDD:   10,
		AvgRMultiple:           0.6,
	}
	cfg.ExitPlan = signal.ExitPlan{StopATRMult: 1.5, RewardRisk: 2}
	cfg.Trailing = risk.TrailConfig{
		ActivateMult:      1,
		StepMult:          0.5,
		LockBreakevenMult: 1.5,
		HardFloorPips:     5,
		MaxLayers:         5,
		OnlyInProfit:      true,
	}
	cfg.SubmitTimeout = time.Second
	return cfg
}

func newHarness(t *testing.T, mutate func(*Config), gopts ...guard.Option) *harness {
	t.Helper()
	h := &harness{broker: newFakeBroker(), streaks: risk.NewStreakBook(), bus: events.NewBus()}

	var err error
	h.breaker, err = risk.NewCircuitBreaker(risk.BreakerConfig{MaxConsecutiveLosses: 5, Cooldown: time.Hour})
	require.NoError(t, err)

	gcfg := guard.DefaultConfig()
	gcfg.ReconcileInterval = time.Minute
	h.guard, err = guard.New(gcfg, h.broker, gopts...)
	require.NoError(t, err)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h.gate, err = New(Deps{
		Broker:  h.broker,
		Breaker: h.breaker,
		Guard:   h.guard,
		Streaks: h.streaks,
		Bus:     h.bus,
	}, cfg)
	require.NoError(t, err)
	return h
}

func buySignal() signal.Signal {
	return signal.Signal{Symbol: "XAUUSD", Side: "BUY", Confidence: 0.9, ATR: 0.2, Profile: "scalp"}
}

func TestEvaluateEntersWithSizedOrder(t *testing.T) {
	h := newHarness(t, nil)
	decisions, unsub := h.bus.Subscribe(events.EventEntryDecision, 4)
	defer unsub()

	d := h.gate.Evaluate(context.Background(), buySignal())

	require.Equal(t, ActionEntry, d.Action, "reason=%s err=%s", d.Reason, d.Err)
	require.NotNil(t, d.Lot)
	assert.InDelta(t, 0.62, *d.Lot, 1e-9)
	require.NotNil(t, d.Sizing)
	assert.InDelta(t, 0.00125, d.Sizing.PerTradeRiskPct, 1e-12)
	assert.InDelta(t, 99.70, d.StopLoss, 1e-9)
	assert.InDelta(t, 100.60, d.TakeProfit, 1e-9)
	assert.Equal(t, "ord-1", d.OrderID)
	assert.NotEmpty(t, d.ID)

	assert.Equal(t, d.ID, h.broker.lastOrder.ClientID)
	assert.Equal(t, broker.SideBuy, h.broker.lastOrder.Side)

	st := h.guard.Snapshot()
	assert.Equal(t, 1, st.OpenCount)
	assert.Empty(t, st.InFlight, "in-flight slot released after fill")
	assert.False(t, st.LastReconcileAt.IsZero(), "reconciled right after the fill")
	assert.False(t, h.gate.EntryInflight())
	assert.Equal(t, 1, h.gate.Trails().Len())

	select {
	case ev := <-decisions:
		assert.Equal(t, d.ID, ev.(EntryDecision).ID)
	default:
		t.Fatal("decision not published")
	}
}

func TestEvaluateDenials(t *testing.T) {
	tests := []struct {
		name       string
		cfg        func(*Config)
		gopts      []guard.Option
		setup      func(h *harness)
		sig        func(*signal.Signal)
		wantAction Action
		wantReason Reason
		submitted  bool
	}{
		{
			name:       "hold",
			sig:        func(s *signal.Signal) { s.Side = "HOLD" },
			wantAction: ActionSkip, wantReason: ReasonNoSignal,
		},
		{
			name:       "low confidence",
			sig:        func(s *signal.Signal) { s.Confidence = 0.2 },
			wantAction: ActionSkip, wantReason: ReasonLowConfidence,
		},
		{
			name:       "trading disabled",
			setup:      func(h *harness) { h.gate.Run().Disable() },
			wantAction: ActionBlocked, wantReason: ReasonTradingDisabled,
		},
		{
			name: "breaker tripped",
			setup: func(h *harness) {
				for i := 0; i < 5; i++ {
					h.breaker.OnTradeResult(-1)
				}
			},
			wantAction: ActionBlocked, wantReason: ReasonCircuitBreaker,
		},
		{
			name:       "max positions",
			gopts:      []guard.Option{guard.WithOpenCount(1)},
			wantAction: ActionBlocked, wantReason: ReasonMaxPositions,
		},
		{
			name:       "in-flight on instrument",
			setup:      func(h *harness) { h.guard.MarkInflight(guard.InflightKey("xauusd")) },
			wantAction: ActionBlocked, wantReason: ReasonInflightOrders,
		},
		{
			name: "loss streak",
			setup: func(h *harness) {
				for i := 0; i < 3; i++ {
					h.streaks.Record("scalp", "XAUUSD", -1)
				}
			},
			wantAction: ActionBlocked, wantReason: ReasonLossStreak,
		},
		{
			name:       "no atr and no default lot",
			sig:        func(s *signal.Signal) { s.ATR = 0 },
			wantAction: ActionSkip, wantReason: ReasonConfigError,
		},
		{
			name:       "degenerate tick spec",
			setup:      func(h *harness) { h.broker.spec.TickValue = 0 },
			wantAction: ActionSkip, wantReason: ReasonConfigError,
		},
		{
			name:       "no price",
			setup:      func(h *harness) { h.broker.priceErr = errors.New("no quote") },
			wantAction: ActionBlocked, wantReason: ReasonMissingSLTPPrice,
		},
		{
			name:       "no stop policy",
			cfg:        func(c *Config) { c.ExitPlan = signal.ExitPlan{} },
			wantAction: ActionBlocked, wantReason: ReasonMissingSLTPStop,
		},
		{
			name:       "no target policy",
			cfg:        func(c *Config) { c.ExitPlan = signal.ExitPlan{StopPips: 10} },
			wantAction: ActionBlocked, wantReason: ReasonMissingSLTPTarget,
		},
		{
			name:       "stop on wrong side",
			sig:        func(s *signal.Signal) { s.StopLoss = 101 },
			wantAction: ActionBlocked, wantReason: ReasonMissingSLTPSide,
		},
		{
			name:       "broker rejects",
			setup:      func(h *harness) { h.broker.submitErr = &broker.Error{Op: "submit", Code: 10019, Msg: "no money", Err: broker.ErrRejected} },
			wantAction: ActionSkip, wantReason: ReasonSubmitFailed,
			submitted: true,
		},
		{
			name:       "broker never answers",
			setup:      func(h *harness) { h.broker.submitErr = &broker.Error{Op: "submit", Msg: "lost", Err: broker.ErrNoAnswer} },
			wantAction: ActionSkip, wantReason: ReasonSubmitTimeout,
			submitted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg, tt.gopts...)
			if tt.setup != nil {
				tt.setup(h)
			}
			sig := buySignal()
			if tt.sig != nil {
				tt.sig(&sig)
			}

			d := h.gate.Evaluate(context.Background(), sig)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Nil(t, d.Lot)

			wantSubmits := 0
			if tt.submitted {
				wantSubmits = 1
			}
			assert.Equal(t, wantSubmits, h.broker.submitCount())
			assert.False(t, h.gate.EntryInflight(), "entry flag released")
			if tt.name != "in-flight on instrument" {
				assert.False(t, h.guard.HasInflight("XAUUSD"), "in-flight slot released")
			}
		})
	}
}

func TestEvaluateUsesDefaultLotAndClampsLast(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.DefaultLot = 0.5
		c.MaxLot = 2
		c.ExitPlan = signal.ExitPlan{StopPips: 30, TargetPips: 60}
	})
	sig := buySignal()
	sig.ATR = 0
	sig.SizeMultiplier = 10

	d := h.gate.Evaluate(context.Background(), sig)
	require.Equal(t, ActionEntry, d.Action, "reason=%s err=%s", d.Reason, d.Err)
	assert.InDelta(t, 2.0, *d.Lot, 1e-9, "0.5 * 10 clamped to max lot")
	assert.Nil(t, d.Sizing)
	assert.InDelta(t, 99.70, d.StopLoss, 1e-9)
	assert.InDelta(t, 100.60, d.TakeProfit, 1e-9)
	assert.Equal(t, 0, h.gate.Trails().Len(), "no trail without ATR")
}

func TestEvaluateSubmitDeadline(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.SubmitTimeout = 20 * time.Millisecond })
	h.broker.onSubmit = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	before := h.broker.countCalls

	d := h.gate.Evaluate(context.Background(), buySignal())
	assert.Equal(t, ActionSkip, d.Action)
	assert.Equal(t, ReasonSubmitTimeout, d.Reason)
	assert.False(t, h.guard.HasInflight("XAUUSD"))
	assert.Equal(t, 0, h.guard.Snapshot().OpenCount)
	assert.Greater(t, h.broker.countCalls, before, "forced reconcile after timeout")
}

func TestEvaluateRunRestartedMidAttempt(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.onPrice = func() { h.gate.Run().Restart() }

	d := h.gate.Evaluate(context.Background(), buySignal())
	assert.Equal(t, ActionBlocked, d.Action)
	assert.Equal(t, ReasonRunIDStale, d.Reason)
	assert.Equal(t, 0, h.broker.submitCount())
}

func TestConcurrentEntryIsDeniedWhileFirstSubmits(t *testing.T) {
	h := newHarness(t, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.broker.onSubmit = func(ctx context.Context) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}

	first := make(chan EntryDecision, 1)
	go func() { first <- h.gate.Evaluate(context.Background(), buySignal()) }()
	<-entered

	other := buySignal()
	other.Symbol = "EURUSD"
	second := h.gate.Evaluate(context.Background(), other)
	assert.Equal(t, ActionBlocked, second.Action)
	assert.Equal(t, ReasonEntryInflight, second.Reason)

	close(release)
	d := <-first
	assert.Equal(t, ActionEntry, d.Action)
	assert.Equal(t, 1, h.broker.submitCount())
}

func TestConcurrentSameSymbolBeforeInflightMark(t *testing.T) {
	h := newHarness(t, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.broker.onPrice = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	first := make(chan EntryDecision, 1)
	go func() { first <- h.gate.Evaluate(context.Background(), buySignal()) }()
	<-entered

	second := h.gate.Evaluate(context.Background(), buySignal())
	assert.Equal(t, ReasonEntryInflight, second.Reason)

	close(release)
	assert.Equal(t, ActionEntry, (<-first).Action)
	assert.Equal(t, 1, h.broker.submitCount())
}

func TestConcurrentBurstNeverDoubleOrders(t *testing.T) {
	h := newHarness(t, nil)
	h.broker.onSubmit = func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	var wg sync.WaitGroup
	results := make(chan EntryDecision, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- h.gate.Evaluate(context.Background(), buySignal())
		}()
	}
	wg.Wait()
	close(results)

	entries := 0
	for d := range results {
		if d.Entered() {
			entries++
			continue
		}
		assert.Contains(t, []Reason{ReasonEntryInflight, ReasonInflightOrders, ReasonMaxPositions}, d.Reason)
	}
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, h.broker.submitCount())
}

func TestOnTradeClosedFeedsRiskState(t *testing.T) {
	h := newHarness(t, nil)
	closed, unsub := h.bus.Subscribe(events.EventTradeClosed, 1)
	defer unsub()

	d := h.gate.Evaluate(context.Background(), buySignal())
	require.True(t, d.Entered())

	h.broker.mu.Lock()
	h.broker.open = 0
	h.broker.mu.Unlock()

	h.gate.OnTradeClosed(context.Background(), TradeResult{OrderID: d.OrderID, Symbol: "XAUUSD", Profile: "scalp", Profit: -12})

	assert.Equal(t, 1, h.breaker.Snapshot().ConsecutiveLosses)
	assert.Equal(t, -12.0, h.breaker.Snapshot().DailyPnL)
	assert.Equal(t, 1, h.streaks.GetConsecutiveLosses("scalp", "XAUUSD"))
	assert.Equal(t, 0, h.guard.Snapshot().OpenCount)
	assert.Equal(t, 0, h.gate.Trails().Len())
	require.Len(t, closed, 1)
}

func TestOnTickSubmitsTighterStopsBestEffort(t *testing.T) {
	h := newHarness(t, nil)
	updates, unsub := h.bus.Subscribe(events.EventTrailUpdate, 8)
	defer unsub()
	ctx := context.Background()

	d := h.gate.Evaluate(ctx, buySignal())
	require.True(t, d.Entered())

	assert.Empty(t, h.gate.OnTick(ctx, "XAUUSD", 100.1), "below activation")

	out := h.gate.OnTick(ctx, "XAUUSD", 100.2)
	require.Len(t, out, 1)
	assert.True(t, out[0].Submitted)
	assert.InDelta(t, 100.05, out[0].Stop, 1e-9)

	assert.Empty(t, h.gate.OnTick(ctx, "XAUUSD", 100.4), "breakeven lock does not beat the floor")

	h.broker.stopErr = errors.New("modify rejected")
	out = h.gate.OnTick(ctx, "XAUUSD", 100.6)
	require.Len(t, out, 1)
	assert.False(t, out[0].Submitted)
	assert.NotEmpty(t, out[0].Err)
	assert.InDelta(t, 100.1, out[0].Stop, 1e-9)
	assert.False(t, h.guard.HasInflight("XAUUSD"))

	assert.Equal(t, []float64{100.05}, h.broker.stopUpdates)
	assert.Len(t, updates, 2)
}

func TestOnTickSkipsWhileInstrumentInFlight(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.True(t, h.gate.Evaluate(ctx, buySignal()).Entered())

	h.guard.MarkInflight("XAUUSD")
	assert.Empty(t, h.gate.OnTick(ctx, "XAUUSD", 100.2))
	h.guard.ClearInflight("XAUUSD")

	// the skipped tick did not consume the activation
	out := h.gate.OnTick(ctx, "XAUUSD", 100.2)
	require.Len(t, out, 1)
	assert.True(t, out[0].Submitted)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, DefaultConfig())
	assert.Error(t, err)

	h := newHarness(t, nil)
	bad := DefaultConfig()
	bad.SubmitTimeout = 0
	_, err = New(Deps{Broker: h.broker, Breaker: h.breaker, Guard: h.guard}, bad)
	assert.Error(t, err)
}

func TestPaperBrokerRoundTrip(t *testing.T) {
	paper := broker.NewPaper(broker.PaperConfig{InitialEquity: 10000},
		broker.Instrument{Symbol: "XAUUSD", Price: 2000, Spec: broker.TickSpec{TickSize: 0.01, TickValue: 1, PipSize: 0.1}})
	breaker, err := risk.NewCircuitBreaker(risk.BreakerConfig{MaxConsecutiveLosses: 1, Cooldown: time.Hour})
	require.NoError(t, err)
	g, err := guard.New(guard.DefaultConfig(), paper)
	require.NoError(t, err)
	gt, err := New(Deps{Broker: paper, Breaker: breaker, Guard: g}, testConfig())
	require.NoError(t, err)

	ctx := context.Background()
	paper.OnClosed(func(c broker.ClosedTrade) {
		gt.OnTradeClosed(ctx, TradeResult{OrderID: c.Handle.OrderID, Symbol: c.Handle.Symbol, Profit: c.Profit})
	})

	sig := buySignal()
	sig.ATR = 2
	d := gt.Evaluate(ctx, sig)
	require.Equal(t, ActionEntry, d.Action, "reason=%s err=%s", d.Reason, d.Err)
	assert.InDelta(t, 1997, d.StopLoss, 1e-9)
	n, _ := paper.GetOpenPositionCount(ctx, "XAUUSD")
	assert.Equal(t, 1, n)

	paper.SetPrice("XAUUSD", 1996)

	assert.True(t, breaker.Snapshot().Tripped)
	assert.Equal(t, 0, g.Snapshot().OpenCount)
	again := gt.Evaluate(ctx, sig)
	assert.Equal(t, ReasonCircuitBreaker, again.Reason)
}

func TestEvaluateYieldsInstrumentClaimedWhilePricing(t *testing.T) {
	h := newHarness(t, nil)
	// a stop update takes the instrument between the early checks and submission
	h.broker.onPrice = func() { require.True(t, h.guard.TryMarkInflight(guard.InflightKey("XAUUSD"))) }

	d := h.gate.Evaluate(context.Background(), buySignal())
	assert.Equal(t, ActionBlocked, d.Action)
	assert.Equal(t, ReasonInflightOrders, d.Reason)
	assert.Equal(t, 0, h.broker.submitCount())
	assert.True(t, h.guard.HasInflight("XAUUSD"), "the stop update keeps its slot")
}

func TestOnTickReleasesSlotWithoutProposal(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.True(t, h.gate.Evaluate(ctx, buySignal()).Entered())

	assert.Empty(t, h.gate.OnTick(ctx, "XAUUSD", 100.1))
	assert.False(t, h.guard.HasInflight("XAUUSD"))

	require.Len(t, h.gate.OnTick(ctx, "XAUUSD", 100.2), 1)
	assert.False(t, h.guard.HasInflight("XAUUSD"))
}

func TestUnprofiledClosesCountTowardsEntryProfile(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := h.gate.Evaluate(ctx, buySignal())
		require.True(t, d.Entered(), "attempt %d: %s", i+1, d.Reason)
		h.broker.mu.Lock()
		h.broker.open = 0
		h.broker.mu.Unlock()
		// settlements arrive from the broker without a profile
		h.gate.OnTradeClosed(ctx, TradeResult{OrderID: d.OrderID, Symbol: "XAUUSD", Profit: -5})
	}
	assert.Equal(t, 3, h.streaks.GetConsecutiveLosses("scalp", "XAUUSD"))
	assert.Equal(t, 0, h.streaks.GetConsecutiveLosses("", "XAUUSD"))

	d := h.gate.Evaluate(ctx, buySignal())
	assert.Equal(t, ActionBlocked, d.Action)
	assert.Equal(t, ReasonLossStreak, d.Reason)

	// unknown orders fall back to the symbol-wide streak
	h.gate.OnTradeClosed(ctx, TradeResult{OrderID: "elsewhere", Symbol: "XAUUSD", Profit: -1})
	assert.Equal(t, 1, h.streaks.GetConsecutiveLosses("", "XAUUSD"))
}

func TestOnTradeClosedReconcilesDespiteThrottle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	d := h.gate.Evaluate(ctx, buySignal())
	require.True(t, d.Entered())

	// a position opened outside the gate is still open after this close
	h.broker.mu.Lock()
	h.broker.open = 1
	h.broker.mu.Unlock()
	before := h.broker.countCalls

	h.gate.OnTradeClosed(ctx, TradeResult{OrderID: d.OrderID, Symbol: "XAUUSD", Profit: 3})
	assert.Greater(t, h.broker.countCalls, before)
	assert.Equal(t, 1, h.guard.Snapshot().OpenCount)
}
