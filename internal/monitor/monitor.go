package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"trading-gate/internal/events"
	"trading-gate/internal/gate"
	"trading-gate/internal/risk"
)

// StatusSource is the part of the gate the monitor polls for gauges.
type StatusSource interface {
	Status() gate.Status
}

// Monitor consumes gate events, keeps Prometheus collectors current and
// raises alerts.
type Monitor struct {
	Bus            *events.Bus
	Gate           StatusSource
	Sink           AlertSink
	Recent         *DecisionRing
	Latency        *LatencyHistogram
	StatusInterval time.Duration

	mu       sync.RWMutex
	byReason map[string]uint64
	alerts   uint64
	lastPoll time.Time
}

// Summary is the in-process counterpart of the Prometheus view.
type Summary struct {
	Decisions map[string]uint64 `json:"decisions"`
	Latency   LatencyStats      `json:"latency_ms"`
	Alerts    uint64            `json:"alerts"`
	Buffered  int               `json:"buffered_decisions"`
	LastPoll  time.Time         `json:"last_poll"`
}

func (m *Monitor) init() {
	if m.Recent == nil {
		m.Recent = NewDecisionRing(200)
	}
	if m.Latency == nil {
		m.Latency = NewLatencyHistogram(1000)
	}
	if m.Sink == nil {
		m.Sink = LogSink{}
	}
	if m.StatusInterval <= 0 {
		m.StatusInterval = 5 * time.Second
	}
	if m.byReason == nil {
		m.byReason = make(map[string]uint64)
	}
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}
	m.init()
	m.Bus.OnDrop(func(e events.Event) { RecordBusDrop(string(e)) })

	decisions, unsubD := m.Bus.Subscribe(events.EventEntryDecision, 256)
	breaker, unsubB := m.Bus.Subscribe(events.EventBreakerState, 16)
	fixes, unsubF := m.Bus.Subscribe(events.EventGuardFix, 16)
	trails, unsubT := m.Bus.Subscribe(events.EventTrailUpdate, 64)
	closed, unsubC := m.Bus.Subscribe(events.EventTradeClosed, 64)

	go func() {
		defer unsubD()
		defer unsubB()
		defer unsubF()
		defer unsubT()
		defer unsubC()

		ticker := time.NewTicker(m.StatusInterval)
		defer ticker.Stop()
		m.poll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.poll()
			case msg, ok := <-decisions:
				if !ok {
					return
				}
				m.Observe(msg)
			case msg, ok := <-breaker:
				if !ok {
					return
				}
				m.Observe(msg)
			case msg, ok := <-fixes:
				if !ok {
					return
				}
				m.Observe(msg)
			case msg, ok := <-trails:
				if !ok {
					return
				}
				m.Observe(msg)
			case msg, ok := <-closed:
				if !ok {
					return
				}
				m.Observe(msg)
			}
		}
	}()
	log.Printf("✓ Monitor started (status interval: %v)", m.StatusInterval)
}

// Observe applies one bus payload to the collectors and alert rules.
func (m *Monitor) Observe(msg any) {
	m.mu.Lock()
	m.init()
	m.mu.Unlock()

	switch e := msg.(type) {
	case gate.EntryDecision:
		decisionsTotal.WithLabelValues(string(e.Action), string(e.Reason)).Inc()
		decisionLatency.Observe(e.Latency.Seconds())
		m.Latency.RecordDuration(e.Latency)
		m.Recent.Add(e)
		m.mu.Lock()
		m.byReason[decisionKey(e)]++
		m.mu.Unlock()
	case events.BreakerChange:
		breakerTransitions.WithLabelValues(e.To, e.Reason).Inc()
		if e.To == risk.StatusTripped.String() {
			breakerTripped.Set(1)
		} else {
			breakerTripped.Set(0)
		}
	case events.GuardFix:
		synced := "false"
		if e.Synced {
			synced = "true"
		}
		guardFixesTotal.WithLabelValues(synced).Inc()
	case events.TrailUpdate:
		result := "submitted"
		if !e.Submitted {
			result = "failed"
		}
		trailUpdatesTotal.WithLabelValues(result).Inc()
	case events.TradeClosed:
		outcome := "win"
		switch {
		case e.Profit < 0:
			outcome = "loss"
		case e.Profit == 0:
			outcome = "flat"
		}
		tradesClosedTotal.WithLabelValues(outcome).Inc()
	}

	if text, ok := alertFor(msg); ok {
		m.mu.Lock()
		m.alerts++
		m.mu.Unlock()
		if err := m.Sink.Send(text); err != nil {
			log.Printf("⚠️ monitor: alert delivery failed: %v", err)
		}
	}
}

func (m *Monitor) poll() {
	if m.Gate == nil {
		return
	}
	st := m.Gate.Status()
	openPositions.Set(float64(st.Guard.OpenCount))
	inflightOrders.Set(float64(len(st.Guard.InFlight)))
	dailyPnL.Set(st.Breaker.DailyPnL)
	if st.Breaker.Tripped {
		breakerTripped.Set(1)
	} else {
		breakerTripped.Set(0)
	}
	m.mu.Lock()
	m.lastPoll = time.Now()
	m.mu.Unlock()
}

// Summary returns decision counts keyed "ACTION" or "ACTION:reason".
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	m.init()
	counts := make(map[string]uint64, len(m.byReason))
	for k, v := range m.byReason {
		counts[k] = v
	}
	s := Summary{Decisions: counts, Alerts: m.alerts, LastPoll: m.lastPoll}
	m.mu.Unlock()
	s.Latency = m.Latency.Stats()
	s.Buffered = m.Recent.Len()
	return s
}

func decisionKey(d gate.EntryDecision) string {
	if d.Reason == gate.ReasonNone {
		return string(d.Action)
	}
	return string(d.Action) + ":" + string(d.Reason)
}
