// Package journal persists the gate's audit trail. It only writes; nothing in
// the gating path reads the journal back.
package journal

import (
	"context"
	"log"

	"trading-gate/internal/events"
	"trading-gate/internal/gate"
	"trading-gate/pkg/db"
)

// Journal subscribes to gate events and queues them on a BatchWriter.
type Journal struct {
	Bus    *events.Bus
	Writer *BatchWriter
}

// New wires a journal over an open database.
func New(bus *events.Bus, database *db.Database, opts ...Option) *Journal {
	o := options{batchSize: 50}
	for _, opt := range opts {
		opt(&o)
	}
	return &Journal{
		Bus:    bus,
		Writer: NewBatchWriter(database.DB, o.batchSize, o.interval),
	}
}

func (j *Journal) Start(ctx context.Context) {
	if j.Bus == nil || j.Writer == nil {
		log.Println("journal not fully configured; skipping")
		return
	}
	decisions, unsubD := j.Bus.Subscribe(events.EventEntryDecision, 512)
	breaker, unsubB := j.Bus.Subscribe(events.EventBreakerState, 32)
	fixes, unsubF := j.Bus.Subscribe(events.EventGuardFix, 32)
	closed, unsubC := j.Bus.Subscribe(events.EventTradeClosed, 128)

	go func() {
		defer unsubD()
		defer unsubB()
		defer unsubF()
		defer unsubC()
		for {
			var (
				msg any
				ok  bool
			)
			select {
			case <-ctx.Done():
				return
			case msg, ok = <-decisions:
			case msg, ok = <-breaker:
			case msg, ok = <-fixes:
			case msg, ok = <-closed:
			}
			if !ok {
				return
			}
			j.Record(msg)
		}
	}()
	log.Println("✓ Journal started")
}

// Record queues one event payload. Unknown payloads are ignored.
func (j *Journal) Record(msg any) {
	op, ok := toWriteOp(msg)
	if !ok {
		return
	}
	j.Writer.Write(op)
}

// Close flushes pending rows and stops the writer.
func (j *Journal) Close() error {
	if j.Writer == nil {
		return nil
	}
	return j.Writer.Close()
}

func toWriteOp(msg any) (WriteOp, bool) {
	switch e := msg.(type) {
	case gate.EntryDecision:
		var lot, risk any
		if e.Lot != nil {
			lot = *e.Lot
		}
		if e.Sizing != nil {
			risk = e.Sizing.PerTradeRiskPct
		}
		return WriteOp{Query: db.InsertDecisionSQL, Args: []any{
			e.ID, string(e.Action), string(e.Reason), e.Symbol, e.Side, e.Profile, e.Confidence,
			lot, e.Price, e.StopLoss, e.TakeProfit, risk, e.OrderID, e.Err,
			e.Latency.Microseconds(), e.At.UTC(),
		}}, true
	case events.BreakerChange:
		return WriteOp{Query: db.InsertBreakerTransitionSQL, Args: []any{
			e.From, e.To, e.Reason, e.At.UTC(),
		}}, true
	case events.GuardFix:
		return WriteOp{Query: db.InsertGuardFixSQL, Args: []any{
			e.Symbol, e.LocalCount, e.BrokerCount, e.Synced, e.Reason, e.At.UTC(),
		}}, true
	case events.TradeClosed:
		return WriteOp{Query: db.InsertTradeCloseSQL, Args: []any{
			e.OrderID, e.Symbol, e.Profile, e.Profit, e.At.UTC(),
		}}, true
	}
	return WriteOp{}, false
}
