package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-gate/internal/events"
	"trading-gate/internal/gate"
	"trading-gate/internal/risk"
	"trading-gate/pkg/db"
)

func openDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	return database
}

func TestJournalRecordsEvents(t *testing.T) {
	database := openDB(t)
	j := New(nil, database, WithBatchSize(100), WithFlushInterval(time.Hour))

	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	lot := 0.62
	j.Record(gate.EntryDecision{
		ID: "d1", Action: gate.ActionEntry, Symbol: "EURUSD", Side: "BUY", Confidence: 0.8,
		Lot: &lot, Price: 100, StopLoss: 99.7, TakeProfit: 100.6, OrderID: "ord-1",
		Sizing:  &risk.LotSizingResult{Lot: lot, PerTradeRiskPct: 0.125},
		Latency: 1500 * time.Microsecond, At: at,
	})
	j.Record(gate.EntryDecision{ID: "d2", Action: gate.ActionBlocked, Reason: gate.ReasonCircuitBreaker,
		Symbol: "EURUSD", Side: "SELL", At: at.Add(time.Second)})
	j.Record(events.BreakerChange{From: "ARMED", To: "TRIPPED", Reason: "daily_loss_limit", At: at})
	j.Record(events.GuardFix{Symbol: "", LocalCount: 2, BrokerCount: 1, Synced: true, Reason: "open_count_desync local=2 broker=1", At: at})
	j.Record(events.TradeClosed{OrderID: "ord-1", Symbol: "EURUSD", Profit: -12.5, At: at})
	j.Record("ignored")

	assert.Equal(t, 5, j.Writer.Pending())
	require.NoError(t, j.Close())
	assert.Equal(t, uint64(5), j.Writer.Metrics().TotalWrites)

	q := database.Queries()
	ctx := context.Background()

	rows, err := q.ListDecisions(ctx, db.DecisionFilter{Symbol: "EURUSD"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "d2", rows[0].ID, "newest first")
	assert.Nil(t, rows[0].Lot)

	got, err := q.GetDecision(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got.Lot)
	assert.InDelta(t, 0.62, *got.Lot, 1e-9)
	require.NotNil(t, got.PerTradeRiskPct)
	assert.Equal(t, int64(1500), got.LatencyMicros)
	assert.Equal(t, "ord-1", got.OrderID)

	_, err = q.GetDecision(ctx, "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)

	counts, err := q.CountByReason(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, counts, 2)

	trips, err := q.ListBreakerTransitions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "daily_loss_limit", trips[0].Reason)

	fixes, err := q.ListGuardFixes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.True(t, fixes[0].Synced)
	assert.Equal(t, 2, fixes[0].LocalCount)

	pnl, err := q.RealizedPnL(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, -12.5, pnl["EURUSD"], 1e-9)
}

func TestJournalDuplicateDecisionIgnored(t *testing.T) {
	database := openDB(t)
	j := New(nil, database, WithBatchSize(1), WithFlushInterval(time.Hour))
	d := gate.EntryDecision{ID: "dup", Action: gate.ActionSkip, Reason: gate.ReasonLowConfidence, Symbol: "XAUUSD", At: time.Now()}
	j.Record(d)
	j.Record(d)
	require.NoError(t, j.Close())

	rows, err := database.Queries().ListDecisions(context.Background(), db.DecisionFilter{Action: "SKIP"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestJournalConsumesBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database := openDB(t)
	bus := events.NewBus()
	j := New(bus, database, WithBatchSize(1), WithFlushInterval(10*time.Millisecond))
	defer j.Close()
	j.Start(ctx)

	bus.Publish(events.EventEntryDecision, gate.EntryDecision{ID: "bus-1", Action: gate.ActionSkip,
		Reason: gate.ReasonNoSignal, Symbol: "GBPUSD", At: time.Now()})

	require.Eventually(t, func() bool {
		rows, err := database.Queries().ListDecisions(context.Background(), db.DecisionFilter{Symbol: "GBPUSD"})
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBatchWriterRollsBackOnError(t *testing.T) {
	database := openDB(t)
	bw := NewBatchWriter(database.DB, 10, time.Hour)
	defer bw.Close()

	bw.WriteQuery(db.InsertTradeCloseSQL, "o1", "EURUSD", "", 1.0, time.Now().UTC())
	bw.WriteQuery("INSERT INTO no_such_table VALUES (1)")
	assert.Error(t, bw.Flush())
	assert.Equal(t, uint64(1), bw.Metrics().TotalErrors)
	assert.Zero(t, bw.Pending())

	pnl, err := database.Queries().RealizedPnL(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, pnl)
}
