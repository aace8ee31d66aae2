package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// WriteOp is one queued journal insert.
type WriteOp struct {
	Query string
	Args  []any
}

// WriterStats are the batch writer counters. TotalWrites counts committed rows only.
type WriterStats struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// BatchWriter queues journal inserts and commits them in one transaction when
// the queue reaches maxSize or on every tick of the flush interval. A failed
// batch is rolled back and dropped; the journal never blocks gating.
type BatchWriter struct {
	db       *sql.DB
	maxSize  int
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	pending []WriteOp

	// serialises commits so batches land in queue order
	flushMu   sync.Mutex
	lastSize  int
	lastFlush time.Time

	rows, batches, failures atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewBatchWriter(db *sql.DB, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	w := &BatchWriter{
		db:       db,
		maxSize:  maxSize,
		interval: interval,
		timeout:  5 * time.Second,
		pending:  make([]WriteOp, 0, maxSize),
		stop:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Write queues op and flushes inline once the queue is full.
func (w *BatchWriter) Write(op WriteOp) {
	w.mu.Lock()
	w.pending = append(w.pending, op)
	full := len(w.pending) >= w.maxSize
	w.mu.Unlock()

	if full {
		if err := w.Flush(); err != nil {
			log.Printf("❌ journal: flush: %v", err)
		}
	}
}

func (w *BatchWriter) WriteQuery(query string, args ...any) {
	w.Write(WriteOp{Query: query, Args: args})
}

// Flush commits everything queued so far.
func (w *BatchWriter) Flush() error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = make([]WriteOp, 0, w.maxSize)
	w.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	w.batches.Add(1)
	w.lastSize, w.lastFlush = len(batch), time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.commit(ctx, batch); err != nil {
		w.failures.Add(1)
		return fmt.Errorf("journal batch of %d: %w", len(batch), err)
	}
	w.rows.Add(uint64(len(batch)))
	return nil
}

func (w *BatchWriter) commit(ctx context.Context, batch []WriteOp) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmts := make(map[string]*sql.Stmt)
	for _, op := range batch {
		st, ok := stmts[op.Query]
		if !ok {
			if st, err = tx.PrepareContext(ctx, op.Query); err != nil {
				return fmt.Errorf("prepare: %w", err)
			}
			defer st.Close()
			stmts[op.Query] = st
		}
		if _, err := st.ExecContext(ctx, op.Args...); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}
	return tx.Commit()
}

func (w *BatchWriter) loop() {
	defer w.wg.Done()
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := w.Flush(); err != nil {
				log.Printf("⚠️ journal: periodic flush: %v", err)
			}
		case <-w.stop:
			if err := w.Flush(); err != nil {
				log.Printf("⚠️ journal: final flush: %v", err)
			}
			return
		}
	}
}

// Pending is the number of queued, uncommitted inserts.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *BatchWriter) Metrics() WriterStats {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return WriterStats{
		TotalWrites:   w.rows.Load(),
		TotalBatches:  w.batches.Load(),
		TotalErrors:   w.failures.Load(),
		LastBatchSize: w.lastSize,
		LastFlushTime: w.lastFlush,
	}
}

// Close flushes what is queued and stops the loop. Safe to call twice.
func (w *BatchWriter) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
	return nil
}
