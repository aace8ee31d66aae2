package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"trading-gate/internal/api"
	"trading-gate/pkg/config"
)

// operator_check exercises the operator API of a running gate.
//
// Usage:
//   go run ./scripts/operator_check
//
// It signs a short-lived operator token with JWT_SECRET and calls the read
// endpoints. With OPERATOR_CHECK_SIGNAL=true it also submits one signal,
// which can open a position on the configured broker.
//
//   OPERATOR_CHECK_SIGNAL  (default "false")
//   CHECK_SYMBOL           (default first of SYMBOLS)

func main() {
	log.Println("=== Operator API check starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is empty; operator endpoints are disabled on the server too")
	}

	symbol := getenv("CHECK_SYMBOL", "")
	if symbol == "" && len(cfg.Symbols) > 0 {
		symbol = cfg.Symbols[0]
	}
	sendSignal := getenv("OPERATOR_CHECK_SIGNAL", "false") == "true"

	token, err := api.IssueToken("operator-check", cfg.JWTSecret, time.Now().Add(5*time.Minute))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}

	base := fmt.Sprintf("http://localhost:%s", cfg.Port)
	client := &http.Client{Timeout: 10 * time.Second}

	for _, path := range []string{"/health", "/api/status", "/api/breaker", "/api/trails", "/api/decisions?limit=5", "/api/journal/reasons?window=24h"} {
		call(client, http.MethodGet, base+path, "", nil)
	}

	// unauthenticated operator call must be refused
	status := call(client, http.MethodPost, base+"/api/run/enable", "", nil)
	if status != http.StatusUnauthorized {
		log.Printf("⚠️ expected 401 without token, got %d", status)
	}

	if sendSignal {
		call(client, http.MethodPost, base+"/api/signals", token, map[string]any{
			"symbol":     symbol,
			"side":       "BUY",
			"confidence": 0.99,
			"atr":        0,
		})
	} else {
		log.Println("[SIGNAL] OPERATOR_CHECK_SIGNAL=false, skipping signal submission")
	}

	call(client, http.MethodPost, base+"/api/guard/reconcile", token, nil)

	log.Println("=== Operator API check finished ===")
}

func call(client *http.Client, method, url, token string, body any) int {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("encode body: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("❌ %s %s: %v", method, url, err)
		return 0
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	log.Printf("[%d] %s %s\n%s", resp.StatusCode, method, url, out)
	return resp.StatusCode
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
