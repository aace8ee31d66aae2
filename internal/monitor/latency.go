package monitor

import (
	"math"
	"sort"
	"sync"
	"time"
)

// LatencyStats summarises the samples currently in a LatencyHistogram, in ms.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// LatencyHistogram keeps the last N latency samples in a ring.
type LatencyHistogram struct {
	mu   sync.Mutex
	buf  []float64
	next int
	full bool
}

func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{buf: make([]float64, size)}
}

// Record adds one sample in milliseconds, evicting the oldest when full.
func (h *LatencyHistogram) Record(ms float64) {
	h.mu.Lock()
	h.buf[h.next] = ms
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
}

func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d) / float64(time.Millisecond))
}

func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	n := h.next
	if h.full {
		n = len(h.buf)
	}
	window := append([]float64(nil), h.buf[:n]...)
	h.mu.Unlock()

	if n == 0 {
		return LatencyStats{}
	}
	sort.Float64s(window)
	total := 0.0
	for _, v := range window {
		total += v
	}
	return LatencyStats{
		Count: n,
		Min:   window[0],
		Max:   window[n-1],
		Avg:   total / float64(n),
		P50:   rank(window, 0.50),
		P95:   rank(window, 0.95),
		P99:   rank(window, 0.99),
	}
}

// rank is the nearest-rank percentile of sorted.
func rank(sorted []float64, p float64) float64 {
	i := int(math.Ceil(p*float64(len(sorted)))) - 1
	if i < 0 {
		i = 0
	}
	return sorted[i]
}

// Timer measures one operation into a histogram.
type Timer struct {
	h     *LatencyHistogram
	began time.Time
}

func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{h: h, began: time.Now()}
}

// Stop records and returns the elapsed time. A nil histogram only measures.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.began)
	if t.h != nil {
		t.h.RecordDuration(d)
	}
	return d
}
