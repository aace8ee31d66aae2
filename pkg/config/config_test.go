package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-gate/internal/gate"
	"trading-gate/internal/risk"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SYMBOLS", " eurusd, ,xauusd ")
	t.Setenv("SIGNAL_INTERVAL", "3s")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("API_RATE_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD", "XAUUSD"}, cfg.Symbols)
	assert.Equal(t, 3*time.Second, cfg.SignalInterval)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, 20.0, cfg.RateLimit, "bad values fall back to the default")
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadGateFileDefaults(t *testing.T) {
	f, err := LoadGateFile("")
	require.NoError(t, err)
	assert.Equal(t, gate.DefaultConfig(), f.GateConfig())
	assert.Equal(t, risk.DefaultBreakerConfig(), f.BreakerConfig())
	assert.NoError(t, f.Validate())
}

func TestLoadGateFileOverrides(t *testing.T) {
	path := writeFile(t, `
timezone: Asia/Tokyo
breaker:
  max_consecutive_losses: 2
  daily_loss_limit: -300
  cooldown: 45m
guard:
  max_positions: 3
  reconcile_interval: 5s
sizing:
  max_lot: 2.5
  default_lot: 0.05
trailing:
  enabled: false
  hard_floor_pips: 10
entry:
  min_confidence: 0.7
  exit_plan:
    stop_pips: 25
    target_pips: 50
  submit_timeout: 8s
instruments:
  - symbol: XAUUSD
    price: 2000
    tick_size: 0.01
    tick_value: 1
    pip_size: 0.1
`)
	f, err := LoadGateFile(path)
	require.NoError(t, err)

	b := f.BreakerConfig()
	assert.Equal(t, 2, b.MaxConsecutiveLosses)
	assert.Equal(t, -300.0, b.DailyLossLimit)
	assert.Equal(t, 45*time.Minute, b.Cooldown)
	assert.Equal(t, "Asia/Tokyo", b.Timezone)

	g := f.GuardConfig()
	assert.Equal(t, 3, g.MaxPositions)
	assert.Equal(t, 5*time.Second, g.ReconcileInterval)
	assert.Equal(t, 30*time.Second, g.InflightTimeout, "untouched keys keep defaults")
	assert.True(t, g.DesyncFix)

	c := f.GateConfig()
	assert.Equal(t, 2.5, c.MaxLot)
	assert.Equal(t, 0.05, c.DefaultLot)
	assert.Equal(t, 0.01, c.MinLot)
	assert.False(t, c.TrailingEnabled)
	assert.Equal(t, 10.0, c.Trailing.HardFloorPips)
	assert.Equal(t, 0.5, c.Trailing.StepMult)
	assert.Equal(t, 0.7, c.MinConfidence)
	assert.Equal(t, 25.0, c.ExitPlan.StopPips)
	assert.Equal(t, 8*time.Second, c.SubmitTimeout)

	ins := f.PaperInstruments()
	require.Len(t, ins, 1)
	assert.Equal(t, 0.1, ins[0].Spec.PipSize)
}

func TestLoadGateFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad timezone", "timezone: Mars/Olympus\n"},
		{"negative cooldown", "breaker:\n  cooldown: -1m\n"},
		{"zero positions", "guard:\n  max_positions: 0\n"},
		{"confidence above one", "entry:\n  min_confidence: 1.5\n"},
		{"instrument without tick", "instruments:\n  - symbol: EURUSD\n    price: 1.1\n"},
		{"duplicate instrument", "instruments:\n  - {symbol: A, price: 1, tick_size: 0.1, tick_value: 1, pip_size: 0.1}\n  - {symbol: A, price: 1, tick_size: 0.1, tick_value: 1, pip_size: 0.1}\n"},
		{"not yaml", "breaker: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGateFile(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadGateFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
