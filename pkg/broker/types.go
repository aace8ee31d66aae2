package broker

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a textual side. HOLD and anything unknown return ok=false.
func ParseSide(s string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return SideBuy, true
	case "SELL", "SHORT":
		return SideSell, true
	default:
		return "", false
	}
}

// Opposite returns the exit side for a position opened on s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign is +1 for BUY and -1 for SELL.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// OrderStatus normalizes broker status into a small set.
type OrderStatus string

const (
	StatusFilled   OrderStatus = "FILLED"
	StatusRejected OrderStatus = "REJECTED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// TickSpec describes price granularity and value for an instrument.
type TickSpec struct {
	TickSize  float64 `json:"tick_size"`
	TickValue float64 `json:"tick_value"` // account currency per tick per standard lot
	PipSize   float64 `json:"pip_size"`
}

// Validate reports a degenerate tick configuration.
func (t TickSpec) Validate() error {
	if t.TickSize <= 0 || t.TickValue <= 0 || t.PipSize <= 0 {
		return fmt.Errorf("invalid tick spec: size=%v value=%v pip=%v", t.TickSize, t.TickValue, t.PipSize)
	}
	return nil
}

// MarketOrder captures an entry intent with its protective levels.
type MarketOrder struct {
	Symbol     string
	Side       Side
	Lot        float64
	StopLoss   float64
	TakeProfit float64
	ClientID   string // idempotency key supplied by the caller
}

// OrderHandle identifies an accepted broker order / position.
type OrderHandle struct {
	OrderID   string      `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Lot       float64     `json:"lot"`
	FillPrice float64     `json:"fill_price"`
	Status    OrderStatus `json:"status"`
	FilledAt  time.Time   `json:"filled_at"`
}

var (
	// ErrNoAnswer means the broker did not answer before the caller's deadline.
	// The order may or may not have been executed.
	ErrNoAnswer = errors.New("broker: no answer")
	// ErrRejected means the broker answered and refused the request.
	ErrRejected = errors.New("broker: rejected")
)

// Error carries a broker-side code alongside one of the sentinel errors.
type Error struct {
	Op   string
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code=%d): %v", e.Op, e.Msg, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNoAnswer reports whether err means the outcome of a submission is unknown.
func IsNoAnswer(err error) bool {
	return errors.Is(err, ErrNoAnswer)
}
