package indicators

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	if got := SMA([]float64{1, 2, 3, 4}, 2); got != 3.5 {
		t.Fatalf("SMA = %v, want 3.5", got)
	}
	if got := SMA([]float64{1}, 2); got != 0 {
		t.Fatalf("SMA short history = %v, want 0", got)
	}
}

func TestRSI(t *testing.T) {
	if got := RSI([]float64{1, 2, 3, 4}, 3); got != 100 {
		t.Fatalf("RSI rising = %v, want 100", got)
	}
	got := RSI([]float64{4, 3, 4, 3, 4}, 4)
	if math.Abs(got-50) > 1e-9 {
		t.Fatalf("RSI balanced = %v, want 50", got)
	}
}

func TestATR(t *testing.T) {
	got := ATR([]float64{10, 11, 10.5, 11.5}, 3)
	if math.Abs(got-(1+0.5+1)/3) > 1e-9 {
		t.Fatalf("ATR = %v", got)
	}
	if ATR([]float64{1, 2}, 3) != 0 {
		t.Fatal("ATR with short history should be 0")
	}
}

func TestEngineWindows(t *testing.T) {
	e := NewEngine(2, 3, 2, 2, 4)
	var v Values
	for _, p := range []float64{1.10, 1.11, 1.12, 1.13} {
		v = e.Update("EURUSD", p)
	}
	if !v.Ready() {
		t.Fatalf("expected ready values, got %+v", v)
	}
	if v.Samples != 4 {
		t.Fatalf("samples = %d, want window 4", v.Samples)
	}
	v = e.Update("EURUSD", 1.14)
	if v.Samples != 4 {
		t.Fatalf("window not trimmed: %d", v.Samples)
	}
	if other := e.Update("GBPUSD", 1.27); other.Ready() {
		t.Fatal("symbols must not share history")
	}
}
