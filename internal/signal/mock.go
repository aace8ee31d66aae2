package signal

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MockSource emits synthetic signals for local development.
type MockSource struct {
	HoldRatio float64 // share of HOLD outputs, default 0.6
	BaseATR   float64 // default 0.5
	Profile   string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockSource creates a seeded mock source.
func NewMockSource(seed int64) *MockSource {
	return &MockSource{rng: rand.New(rand.NewSource(seed))}
}

func (m *MockSource) Next(ctx context.Context, symbol string) (Signal, error) {
	if err := ctx.Err(); err != nil {
		return Signal{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	hold := m.HoldRatio
	if hold <= 0 {
		hold = 0.6
	}
	atr := m.BaseATR
	if atr <= 0 {
		atr = 0.5
	}

	side := "HOLD"
	if r := m.rng.Float64(); r >= hold {
		side = "BUY"
		if m.rng.Intn(2) == 0 {
			side = "SELL"
		}
	}
	return Signal{
		Symbol:     symbol,
		Side:       side,
		Confidence: 0.4 + m.rng.Float64()*0.6,
		ATR:        atr * (0.5 + m.rng.Float64()),
		Profile:    m.Profile,
		At:         time.Now(),
	}, nil
}
