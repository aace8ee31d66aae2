package signal

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultEvaluateMethod is the worker RPC used when none is configured.
const DefaultEvaluateMethod = "/signal.SignalService/Evaluate"

// GRPCSource asks the model worker for a signal over gRPC. Request and
// response are google.protobuf.Struct so the worker schema can evolve freely.
type GRPCSource struct {
	conn    *grpc.ClientConn
	method  string
	timeout time.Duration
}

// NewGRPCSource connects to the worker at addr.
func NewGRPCSource(addr, method string, timeout time.Duration) (*GRPCSource, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return newGRPCSource(conn, method, timeout), nil
}

func newGRPCSource(conn *grpc.ClientConn, method string, timeout time.Duration) *GRPCSource {
	if method == "" {
		method = DefaultEvaluateMethod
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &GRPCSource{conn: conn, method: method, timeout: timeout}
}

func (g *GRPCSource) Close() error {
	if g.conn == nil {
		return nil
	}
	return g.conn.Close()
}

func (g *GRPCSource) Next(ctx context.Context, symbol string) (Signal, error) {
	req, err := structpb.NewStruct(map[string]any{"symbol": symbol})
	if err != nil {
		return Signal{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, g.method, req, resp); err != nil {
		return Signal{}, fmt.Errorf("signal worker %s: %w", g.method, err)
	}
	m := resp.AsMap()
	if _, ok := m["symbol"]; !ok {
		m["symbol"] = symbol
	}
	return FromMap(m)
}
