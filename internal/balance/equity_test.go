package balance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEquity struct {
	val   float64
	err   error
	calls int
}

func (s *stubEquity) GetEquity(ctx context.Context) (float64, error) {
	s.calls++
	return s.val, s.err
}

func TestEquityCacheHonoursTTL(t *testing.T) {
	src := &stubEquity{val: 1000}
	c := NewEquityCache(src, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	v, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, v)

	src.val = 2000
	v, _ = c.Get(ctx)
	assert.Equal(t, 1000.0, v, "served from cache")
	assert.Equal(t, 1, src.calls)

	now = now.Add(time.Minute)
	v, _ = c.Get(ctx)
	assert.Equal(t, 2000.0, v)
	assert.Equal(t, 2, src.calls)
}

func TestEquityCacheFallsBackToStale(t *testing.T) {
	src := &stubEquity{val: 500}
	c := NewEquityCache(src, 0)
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)

	src.err = errors.New("timeout")
	v, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500.0, v)
	assert.Equal(t, "timeout", c.Snapshot().LastErr)
}

func TestEquityCacheErrorsWithoutValue(t *testing.T) {
	c := NewEquityCache(&stubEquity{val: 0}, time.Second)
	_, err := c.Get(context.Background())
	assert.Error(t, err)

	_, err = NewEquityCache(nil, time.Second).Get(context.Background())
	assert.Error(t, err)
}
