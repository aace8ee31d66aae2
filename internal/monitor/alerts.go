package monitor

import (
	"fmt"
	"log"

	"trading-gate/internal/events"
	"trading-gate/internal/gate"
	"trading-gate/internal/risk"
)

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the process log.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Printf("🚨 ALERT %s", message)
	return nil
}

// alertFor decides whether an event needs an operator's attention.
func alertFor(ev any) (string, bool) {
	switch e := ev.(type) {
	case gate.EntryDecision:
		if e.Reason == gate.ReasonSubmitTimeout {
			return fmt.Sprintf("%s %s: broker did not answer, order state unknown until reconciliation (%s)", e.Symbol, e.Side, e.Err), true
		}
		if e.Reason == gate.ReasonConfigError {
			return fmt.Sprintf("%s: risk configuration error: %s", e.Symbol, e.Err), true
		}
	case events.BreakerChange:
		if e.To == risk.StatusTripped.String() {
			return fmt.Sprintf("circuit breaker tripped: %s", e.Reason), true
		}
	case events.GuardFix:
		if !e.Synced {
			return fmt.Sprintf("position count desync on %q left unfixed: %s", e.Symbol, e.Reason), true
		}
	}
	return "", false
}
