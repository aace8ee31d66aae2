package signal

import (
	"context"
	"log"
	"time"
)

// Handler consumes one signal. The gate's Evaluate is adapted to this.
type Handler func(ctx context.Context, sig Signal)

// Runner polls a Source for every symbol on an interval.
type Runner struct {
	Source   Source
	Symbols  []string
	Interval time.Duration
	Handle   Handler
}

// Start launches the polling loop; it returns immediately.
func (r *Runner) Start(ctx context.Context) {
	if r.Source == nil || r.Handle == nil {
		log.Println("signal runner: source or handler not set")
		return
	}
	if r.Interval <= 0 {
		r.Interval = 5 * time.Second
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
	log.Printf("✓ Signal runner started (symbols: %v, interval: %v)", r.Symbols, r.Interval)
}

// Poll fetches and handles one signal per symbol.
func (r *Runner) Poll(ctx context.Context) {
	for _, sym := range r.Symbols {
		sig, err := r.Source.Next(ctx, sym)
		if err != nil {
			log.Printf("❌ signal %s: %v", sym, err)
			continue
		}
		if sig.Symbol == "" {
			sig.Symbol = sym
		}
		r.Handle(ctx, sig)
	}
}
