package gate

import (
	"context"
	"log"
	"time"

	"trading-gate/internal/events"
)

// TrailRunner polls prices for every instrument with a live trail and feeds
// them to Gate.OnTick.
type TrailRunner struct {
	Gate     *Gate
	Interval time.Duration
	Bus      *events.Bus
}

// Start launches the polling loop; it returns immediately.
func (r *TrailRunner) Start(ctx context.Context) {
	if r.Gate == nil {
		log.Println("trail runner: gate not set")
		return
	}
	if r.Interval <= 0 {
		r.Interval = time.Second
	}
	go func() {
		t := time.NewTicker(r.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.Poll(ctx)
			}
		}
	}()
	log.Printf("✓ Trail runner started (interval: %v)", r.Interval)
}

// Poll runs one pass over the trailed instruments.
func (r *TrailRunner) Poll(ctx context.Context) {
	for _, sym := range r.Gate.Trails().Symbols() {
		entries := r.Gate.Trails().ForSymbol(sym)
		if len(entries) == 0 {
			continue
		}
		// quote on the exit side of the position
		exit := entries[0].Handle.Side.Opposite()
		price, err := r.Gate.deps.Broker.GetCurrentPrice(ctx, sym, exit)
		if err != nil {
			log.Printf("❌ trail runner: price %s: %v", sym, err)
			continue
		}
		if r.Bus != nil {
			r.Bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: sym, Price: price, At: time.Now()})
		}
		r.Gate.OnTick(ctx, sym, price)
	}
}
