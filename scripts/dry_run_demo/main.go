package main

import (
	"context"
	"log"
	"time"

	"trading-gate/internal/gate"
	"trading-gate/internal/guard"
	"trading-gate/internal/risk"
	"trading-gate/internal/signal"
	"trading-gate/pkg/broker"
	"trading-gate/pkg/config"
)

// dry_run_demo walks the gate through a few scripted scenarios on the paper
// broker. It touches no broker and no database.
//
// Usage:
//   go run ./scripts/dry_run_demo
//
// It will:
//   1) Enter XAUUSD, walk the price up so the trailing stop ratchets, then
//      let the stop close the trade.
//   2) Take losing trades until the circuit breaker trips.
//   3) Reset the breaker and show the next entry going through.

func main() {
	log.Println("=== DRY-RUN gate demo starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config error: %v", err)
	}
	gf, err := config.LoadGateFile(cfg.GateFile)
	if err != nil {
		log.Fatalf("gate file error: %v", err)
	}

	ctx := context.Background()
	symbol := "XAUUSD"
	paper := broker.NewPaper(broker.PaperConfig{InitialEquity: cfg.DryRunInitialEquity},
		broker.Instrument{Symbol: symbol, Price: 2000, Spec: broker.TickSpec{TickSize: 0.01, TickValue: 1, PipSize: 0.1}})

	bcfg := gf.BreakerConfig()
	bcfg.MaxConsecutiveLosses = 2
	breaker, err := risk.NewCircuitBreaker(bcfg)
	if err != nil {
		log.Fatalf("breaker: %v", err)
	}
	pg, err := guard.New(gf.GuardConfig(), paper)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}
	g, err := gate.New(gate.Deps{Broker: paper, Breaker: breaker, Guard: pg}, gf.GateConfig())
	if err != nil {
		log.Fatalf("gate: %v", err)
	}
	paper.OnClosed(func(c broker.ClosedTrade) {
		log.Printf("[CLOSED] %s %s exit=%.2f profit=%.2f (%s)", c.Handle.Symbol, c.Handle.OrderID[:8], c.ExitPrice, c.Profit, c.Reason)
		g.OnTradeClosed(ctx, gate.TradeResult{OrderID: c.Handle.OrderID, Symbol: c.Handle.Symbol, Profit: c.Profit, ClosedAt: c.ClosedAt})
	})

	buy := signal.Signal{Symbol: symbol, Side: "BUY", Confidence: 0.8, ATR: 2, At: time.Now()}

	log.Printf("[SCENARIO 1] Entry, trailing ratchet, stop-out on %s", symbol)
	d := g.Evaluate(ctx, buy)
	log.Printf("  decision: %s %s lot=%v sl=%.2f tp=%.2f", d.Action, d.Reason, deref(d.Lot), d.StopLoss, d.TakeProfit)
	for _, px := range []float64{2001, 2002.5, 2003.5, 2004.2, 2003.0} {
		paper.SetPrice(symbol, px)
		for _, u := range g.OnTick(ctx, symbol, px) {
			log.Printf("  price %.2f -> stop %.2f (layers=%d submitted=%v)", px, u.Stop, u.Layers, u.Submitted)
		}
	}

	log.Printf("[SCENARIO 2] Consecutive losses trip the breaker")
	price := 2003.0
	for i := 0; i < 3; i++ {
		d := g.Evaluate(ctx, buy)
		log.Printf("  attempt %d: %s %s", i+1, d.Action, d.Reason)
		if !d.Entered() {
			break
		}
		price = d.StopLoss - 0.5
		paper.SetPrice(symbol, price)
	}
	log.Printf("  breaker: %+v", breaker.Snapshot())

	log.Printf("[SCENARIO 3] Operator reset")
	breaker.Reset()
	d = g.Evaluate(ctx, buy)
	log.Printf("  decision after reset: %s %s", d.Action, d.Reason)

	log.Println("[SCENARIO DONE] Final gate state:")
	st := g.Status()
	log.Printf("  run=%+v open=%d trails=%d breaker=%s", st.Run, st.Guard.OpenCount, len(st.Trails), st.Breaker.Status)

	log.Println("=== DRY-RUN gate demo finished ===")
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
