package journal

import "time"

type options struct {
	batchSize int
	interval  time.Duration
}

// Option tunes the journal's batch writer.
type Option func(*options)

// WithBatchSize sets how many rows trigger an immediate flush.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithFlushInterval sets the background flush period.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}
