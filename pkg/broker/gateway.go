package broker

import "context"

// Gateway abstracts the broker terminal. It is the authority for positions,
// equity and prices; the gating core only ever reads from it or submits to it.
type Gateway interface {
	GetOpenPositionCount(ctx context.Context, symbol string) (int, error)
	SubmitMarketOrder(ctx context.Context, req MarketOrder) (OrderHandle, error)
	SubmitStopUpdate(ctx context.Context, h OrderHandle, newStop float64) error
	GetEquity(ctx context.Context) (float64, error)
	GetTickSpec(ctx context.Context, symbol string) (TickSpec, error)
	GetCurrentPrice(ctx context.Context, symbol string, side Side) (float64, error)
}
