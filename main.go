package main

import (
	"context"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"trading-gate/internal/api"
	"trading-gate/internal/balance"
	"trading-gate/internal/events"
	"trading-gate/internal/gate"
	"trading-gate/internal/guard"
	"trading-gate/internal/journal"
	"trading-gate/internal/monitor"
	"trading-gate/internal/risk"
	"trading-gate/internal/signal"
	"trading-gate/pkg/broker"
	"trading-gate/pkg/config"
	"trading-gate/pkg/db"
)

// defaultInstruments seeds the paper broker when the gate file lists none.
var defaultInstruments = map[string]broker.Instrument{
	"EURUSD": {Symbol: "EURUSD", Price: 1.0850, Spec: broker.TickSpec{TickSize: 0.00001, TickValue: 1, PipSize: 0.0001}},
	"GBPUSD": {Symbol: "GBPUSD", Price: 1.2700, Spec: broker.TickSpec{TickSize: 0.00001, TickValue: 1, PipSize: 0.0001}},
	"USDJPY": {Symbol: "USDJPY", Price: 150.00, Spec: broker.TickSpec{TickSize: 0.001, TickValue: 0.67, PipSize: 0.01}},
	"XAUUSD": {Symbol: "XAUUSD", Price: 2000.0, Spec: broker.TickSpec{TickSize: 0.01, TickValue: 1, PipSize: 0.1}},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	gf, err := config.LoadGateFile(cfg.GateFile)
	if err != nil {
		log.Fatalf("gate file: %v", err)
	}
	if cfg.GateFile == "" || gf.Timezone == "" {
		gf.Timezone = cfg.Timezone
	}
	log.Printf("Config loaded (port %s, symbols %v, timezone %s, dry-run %v)", cfg.Port, cfg.Symbols, gf.Timezone, cfg.DryRun)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	// Broker
	if !cfg.DryRun {
		log.Fatal("live trading needs a broker gateway; this binary only ships the paper broker (set DRY_RUN=true)")
	}
	instruments := gf.PaperInstruments()
	if len(instruments) == 0 {
		for _, sym := range cfg.Symbols {
			in, ok := defaultInstruments[sym]
			if !ok {
				log.Fatalf("no paper instrument for %s; list it under instruments in the gate file", sym)
			}
			instruments = append(instruments, in)
		}
	}
	paper := broker.NewPaper(broker.PaperConfig{
		InitialEquity: cfg.DryRunInitialEquity,
		SlippageBps:   cfg.DryRunSlippageBps,
		LatencyMinMs:  cfg.DryRunLatencyMinMs,
		LatencyMaxMs:  cfg.DryRunLatencyMaxMs,
		Step:          cfg.DryRunPriceStep,
	}, instruments...)
	paper.Start(ctx, time.Second)

	// Risk components
	breaker, err := risk.NewCircuitBreaker(gf.BreakerConfig())
	if err != nil {
		log.Fatalf("circuit breaker: %v", err)
	}
	posGuard, err := guard.New(gf.GuardConfig(), paper)
	if err != nil {
		log.Fatalf("position guard: %v", err)
	}
	equity := balance.NewEquityCache(paper, cfg.EquityTTL)

	g, err := gate.New(gate.Deps{
		Broker:  paper,
		Breaker: breaker,
		Guard:   posGuard,
		Equity:  equity,
		Bus:     bus,
	}, gf.GateConfig())
	if err != nil {
		log.Fatalf("gate: %v", err)
	}

	// Settled trades flow back into breaker, streaks, guard and trails.
	paper.OnClosed(func(c broker.ClosedTrade) {
		g.OnTradeClosed(ctx, gate.TradeResult{
			OrderID:  c.Handle.OrderID,
			Symbol:   c.Handle.Symbol,
			Profit:   c.Profit,
			ClosedAt: c.ClosedAt,
		})
	})

	// Monitoring
	mon := &monitor.Monitor{Bus: bus, Gate: g, Sink: monitor.LogSink{}, StatusInterval: cfg.StatusInterval}
	mon.Start(ctx)

	// Journal
	var queries *db.JournalQueries
	if cfg.EnableJournal {
		database, err := db.New(cfg.DBPath)
		if err != nil {
			log.Fatalf("journal db: %v", err)
		}
		defer database.Close()
		if err := db.ApplyMigrations(database); err != nil {
			log.Fatalf("journal migrations: %v", err)
		}
		j := journal.New(bus, database)
		defer j.Close()
		j.Start(ctx)
		queries = database.Queries()
		log.Printf("Journal at %s", cfg.DBPath)
	}

	// Service loops
	posGuard.Start(ctx)
	equity.Start(ctx, cfg.EquityInterval)
	trails := &gate.TrailRunner{Gate: g, Interval: cfg.TrailInterval, Bus: bus}
	trails.Start(ctx)

	source, closeSource, err := newSignalSource(cfg, paper)
	if err != nil {
		log.Fatalf("signal source: %v", err)
	}
	defer closeSource()
	runner := &signal.Runner{
		Source:   source,
		Symbols:  cfg.Symbols,
		Interval: cfg.SignalInterval,
		Handle: func(ctx context.Context, sig signal.Signal) {
			g.Evaluate(ctx, sig)
		},
	}
	runner.Start(ctx)

	// API
	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "dev"
	}
	if cfg.JWTSecret == "" {
		log.Println("⚠️ JWT_SECRET not set; operator endpoints are disabled")
	}
	server := api.NewServer(api.Deps{
		Gate:      g,
		Bus:       bus,
		Monitor:   mon,
		Journal:   queries,
		JWTSecret: cfg.JWTSecret,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.RateBurst,
		Meta: api.SystemMeta{
			DryRun:    cfg.DryRun,
			Symbols:   cfg.Symbols,
			Signals:   cfg.SignalSource,
			Timezone:  gf.Timezone,
			Version:   version,
			StartedAt: time.Now(),
		},
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("API server error: %v", err)
		}
	}()
	log.Printf("✓ Trading gate running on :%s", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down...")
	g.Run().Disable()
}

func newSignalSource(cfg *config.Config, paper *broker.Paper) (signal.Source, func(), error) {
	switch cfg.SignalSource {
	case "indicators":
		log.Println("Using indicator signal source on paper prices")
		return signal.NewIndicatorSource(func(ctx context.Context, symbol string) (float64, error) {
			return paper.GetCurrentPrice(ctx, symbol, broker.SideBuy)
		}), func() {}, nil
	case "grpc":
		src, err := signal.NewGRPCSource(cfg.SignalAddr, cfg.SignalMethod, cfg.SignalTimeout)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Signal worker at %s", cfg.SignalAddr)
		return src, func() { _ = src.Close() }, nil
	default:
		seed := cfg.MockSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		log.Println("Using mock signal source")
		return signal.NewMockSource(seed), func() {}, nil
	}
}
