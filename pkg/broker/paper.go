package broker

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperConfig controls the simulated broker.
type PaperConfig struct {
	InitialEquity float64
	SlippageBps   float64 // slippage applied on fills (bps)
	LatencyMinMs  int     // simulated gateway latency lower bound
	LatencyMaxMs  int     // simulated gateway latency upper bound
	Step          float64 // random-walk step per Tick, in price units
}

// Instrument seeds one tradable symbol of the paper broker.
type Instrument struct {
	Symbol string
	Price  float64
	Spec   TickSpec
}

// ClosedTrade is reported when a paper position hits its stop or target.
type ClosedTrade struct {
	Handle    OrderHandle
	ExitPrice float64
	Profit    float64
	Reason    string // STOP or TARGET
	ClosedAt  time.Time
}

type paperPosition struct {
	handle OrderHandle
	stop   float64
	target float64
}

type paperInstrument struct {
	price float64
	spec  TickSpec
}

var _ Gateway = (*Paper)(nil)

// Paper is an in-memory broker used for dry-run mode and tests.
type Paper struct {
	cfg PaperConfig

	mu          sync.RWMutex
	instruments map[string]*paperInstrument
	positions   map[string]*paperPosition // order id -> position
	equity      float64
	rng         *rand.Rand

	// failure injection
	failNext     error
	silentNext   bool
	submitHook   func(MarketOrder)
	closedHandle func(ClosedTrade)
}

// NewPaper builds a paper broker for the given instruments.
func NewPaper(cfg PaperConfig, instruments ...Instrument) *Paper {
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = 10000
	}
	p := &Paper{
		cfg:         cfg,
		instruments: make(map[string]*paperInstrument, len(instruments)),
		positions:   make(map[string]*paperPosition),
		equity:      cfg.InitialEquity,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, in := range instruments {
		p.instruments[in.Symbol] = &paperInstrument{price: in.Price, spec: in.Spec}
	}
	return p
}

// OnClosed registers a callback for positions closed by stop or target.
func (p *Paper) OnClosed(fn func(ClosedTrade)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closedHandle = fn
}

// OnSubmit registers a hook invoked (outside the lock) for every market order.
func (p *Paper) OnSubmit(fn func(MarketOrder)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitHook = fn
}

// FailNext makes the next submission fail with err.
func (p *Paper) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = err
}

// SilenceNext makes the next submission block until the caller gives up,
// simulating a request whose answer is lost.
func (p *Paper) SilenceNext() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silentNext = true
}

// SetPrice moves an instrument's price and evaluates stops/targets.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	in, ok := p.instruments[symbol]
	if !ok {
		p.mu.Unlock()
		return
	}
	in.price = price
	closed := p.sweepLocked(symbol, price)
	fn := p.closedHandle
	p.mu.Unlock()

	if fn != nil {
		for _, c := range closed {
			fn(c)
		}
	}
}

// Tick advances every instrument by one random-walk step.
func (p *Paper) Tick() {
	p.mu.RLock()
	next := make(map[string]float64, len(p.instruments))
	for sym, in := range p.instruments {
		next[sym] = in.price + (p.rng.Float64()*2-1)*p.cfg.Step
	}
	p.mu.RUnlock()

	for sym, px := range next {
		if px <= 0 {
			continue
		}
		p.SetPrice(sym, px)
	}
}

// Start runs Tick on an interval until ctx is done.
func (p *Paper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.Tick()
			}
		}
	}()
}

func (p *Paper) GetOpenPositionCount(ctx context.Context, symbol string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, pos := range p.positions {
		if symbol == "" || pos.handle.Symbol == symbol {
			n++
		}
	}
	return n, nil
}

func (p *Paper) SubmitMarketOrder(ctx context.Context, req MarketOrder) (OrderHandle, error) {
	p.mu.Lock()
	hook := p.submitHook
	if p.silentNext {
		p.silentNext = false
		p.mu.Unlock()
		if hook != nil {
			hook(req)
		}
		<-ctx.Done()
		return OrderHandle{}, &Error{Op: "submit", Msg: "request lost", Err: ErrNoAnswer}
	}
	if err := p.failNext; err != nil {
		p.failNext = nil
		p.mu.Unlock()
		if hook != nil {
			hook(req)
		}
		return OrderHandle{}, err
	}
	in, ok := p.instruments[req.Symbol]
	if !ok {
		p.mu.Unlock()
		return OrderHandle{}, &Error{Op: "submit", Msg: "unknown symbol " + req.Symbol, Err: ErrRejected}
	}
	price := in.price
	p.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if err := p.simulateLatency(ctx); err != nil {
		return OrderHandle{}, err
	}

	slippage := p.cfg.SlippageBps / 10000.0
	if slippage > 0 {
		p.mu.Lock()
		noise := p.rng.Float64() * slippage
		p.mu.Unlock()
		price = price * (1 + req.Side.Sign()*noise)
	}

	h := OrderHandle{
		OrderID:   uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Lot:       req.Lot,
		FillPrice: price,
		Status:    StatusFilled,
		FilledAt:  time.Now(),
	}

	p.mu.Lock()
	p.positions[h.OrderID] = &paperPosition{handle: h, stop: req.StopLoss, target: req.TakeProfit}
	p.mu.Unlock()

	log.Printf("PAPER: %s %s lot=%.4f price=%.5f sl=%.5f tp=%.5f",
		req.Side, req.Symbol, req.Lot, price, req.StopLoss, req.TakeProfit)
	return h, nil
}

func (p *Paper) SubmitStopUpdate(ctx context.Context, h OrderHandle, newStop float64) error {
	if err := p.simulateLatency(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[h.OrderID]
	if !ok {
		return &Error{Op: "modify", Msg: "position not found " + h.OrderID, Err: ErrRejected}
	}
	pos.stop = newStop
	return nil
}

func (p *Paper) GetEquity(ctx context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equity, nil
}

func (p *Paper) GetTickSpec(ctx context.Context, symbol string) (TickSpec, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	in, ok := p.instruments[symbol]
	if !ok {
		return TickSpec{}, fmt.Errorf("paper: unknown symbol %s", symbol)
	}
	return in.spec, nil
}

func (p *Paper) GetCurrentPrice(ctx context.Context, symbol string, side Side) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	in, ok := p.instruments[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: unknown symbol %s", symbol)
	}
	return in.price, nil
}

// StopFor returns the stop currently attached to an order, for inspection.
func (p *Paper) StopFor(orderID string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[orderID]
	if !ok {
		return 0, false
	}
	return pos.stop, true
}

// ClosePosition closes an order at the current price and returns the realized trade.
func (p *Paper) ClosePosition(orderID string) (ClosedTrade, error) {
	p.mu.Lock()
	pos, ok := p.positions[orderID]
	if !ok {
		p.mu.Unlock()
		return ClosedTrade{}, fmt.Errorf("paper: position %s not found", orderID)
	}
	price := p.instruments[pos.handle.Symbol].price
	c := p.closeLocked(pos, price, "MANUAL")
	p.mu.Unlock()
	return c, nil
}

func (p *Paper) sweepLocked(symbol string, price float64) []ClosedTrade {
	var closed []ClosedTrade
	for _, pos := range p.positions {
		if pos.handle.Symbol != symbol {
			continue
		}
		long := pos.handle.Side == SideBuy
		switch {
		case pos.stop > 0 && ((long && price <= pos.stop) || (!long && price >= pos.stop)):
			closed = append(closed, p.closeLocked(pos, pos.stop, "STOP"))
		case pos.target > 0 && ((long && price >= pos.target) || (!long && price <= pos.target)):
			closed = append(closed, p.closeLocked(pos, pos.target, "TARGET"))
		}
	}
	return closed
}

func (p *Paper) closeLocked(pos *paperPosition, exit float64, reason string) ClosedTrade {
	spec := p.instruments[pos.handle.Symbol].spec
	profit := (exit - pos.handle.FillPrice) * pos.handle.Side.Sign() * pos.handle.Lot * spec.TickValue / spec.TickSize
	p.equity += profit
	delete(p.positions, pos.handle.OrderID)
	log.Printf("PAPER: closed %s %s at %.5f (%s) profit=%.2f equity=%.2f",
		pos.handle.Symbol, pos.handle.OrderID, exit, reason, profit, p.equity)
	return ClosedTrade{
		Handle:    pos.handle,
		ExitPrice: exit,
		Profit:    profit,
		Reason:    reason,
		ClosedAt:  time.Now(),
	}
}

func (p *Paper) simulateLatency(ctx context.Context) error {
	minMs, maxMs := p.cfg.LatencyMinMs, p.cfg.LatencyMaxMs
	if maxMs <= 0 {
		return nil
	}
	if minMs < 0 {
		minMs = 0
	}
	if minMs > maxMs {
		minMs, maxMs = maxMs, minMs
	}
	delayMs := minMs
	if span := maxMs - minMs; span > 0 {
		p.mu.Lock()
		delayMs += p.rng.Intn(span + 1)
		p.mu.Unlock()
	}
	select {
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return &Error{Op: "submit", Msg: "latency exceeded deadline", Err: ErrNoAnswer}
	}
}
