package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading gate.
type Config struct {
	Port string

	// Instruments gated by the signal runner
	Symbols  []string
	Timezone string

	// Risk profile (YAML); empty uses built-in defaults
	GateFile string

	// Signal source: "mock", "indicators" or a gRPC worker
	SignalSource   string
	SignalAddr     string
	SignalMethod   string
	SignalTimeout  time.Duration
	SignalInterval time.Duration
	MockSeed       int64

	// Execution
	DryRun bool

	// Dry-run simulation
	DryRunInitialEquity float64
	DryRunSlippageBps   float64 // slippage applied on fills (bps)
	DryRunLatencyMinMs  int     // simulated gateway latency lower bound
	DryRunLatencyMaxMs  int     // simulated gateway latency upper bound
	DryRunPriceStep     float64 // random-walk step per paper tick

	// Service loops
	TrailInterval  time.Duration
	EquityTTL      time.Duration
	EquityInterval time.Duration
	StatusInterval time.Duration

	// Journal
	DBPath        string
	EnableJournal bool

	// API
	JWTSecret string
	RateLimit float64
	RateBurst int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		Symbols:             splitAndTrim(getEnv("SYMBOLS", "EURUSD,XAUUSD")),
		Timezone:            getEnv("TRADING_TIMEZONE", "UTC"),
		GateFile:            getEnv("GATE_FILE", ""),
		SignalSource:        strings.ToLower(getEnv("SIGNAL_SOURCE", "mock")),
		SignalAddr:          getEnv("SIGNAL_WORKER_ADDR", "localhost:50051"),
		SignalMethod:        getEnv("SIGNAL_WORKER_METHOD", ""),
		SignalTimeout:       getEnvDuration("SIGNAL_TIMEOUT", 2*time.Second),
		SignalInterval:      getEnvDuration("SIGNAL_INTERVAL", 15*time.Second),
		MockSeed:            int64(getEnvInt("MOCK_SEED", 0)),
		DryRun:              getEnv("DRY_RUN", "true") == "true",
		DryRunInitialEquity: getEnvFloat("DRY_RUN_INITIAL_EQUITY", 10000.0),
		DryRunSlippageBps:   getEnvFloat("DRY_RUN_SLIPPAGE_BPS", 1),
		DryRunLatencyMinMs:  getEnvInt("DRY_RUN_GATEWAY_LATENCY_MIN_MS", 0),
		DryRunLatencyMaxMs:  getEnvInt("DRY_RUN_GATEWAY_LATENCY_MAX_MS", 0),
		DryRunPriceStep:     getEnvFloat("DRY_RUN_PRICE_STEP", 0),
		TrailInterval:       getEnvDuration("TRAIL_INTERVAL", time.Second),
		EquityTTL:           getEnvDuration("EQUITY_TTL", 30*time.Second),
		EquityInterval:      getEnvDuration("EQUITY_INTERVAL", time.Minute),
		StatusInterval:      getEnvDuration("STATUS_INTERVAL", 5*time.Second),
		DBPath:              getEnv("DB_PATH", "./data/gate_journal.db"),
		EnableJournal:       getEnv("ENABLE_JOURNAL", "true") == "true",
		JWTSecret:           getEnv("JWT_SECRET", ""),
		RateLimit:           getEnvFloat("API_RATE_LIMIT", 20),
		RateBurst:           getEnvInt("API_RATE_BURST", 50),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.ToUpper(strings.TrimSpace(p)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
