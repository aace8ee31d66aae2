package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"trading-gate/pkg/config"
	"trading-gate/pkg/db"
)

type HealthStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthReport struct {
	Overall  string         `json:"overall"`
	Services []HealthStatus `json:"services"`
}

func main() {
	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	fmt.Println("🏥 Trading Gate Health Check")
	fmt.Println("===========================")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := HealthReport{
		Overall:  "HEALTHY",
		Services: make([]HealthStatus, 0),
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	// 1. Config and risk profile
	report.Services = append(report.Services, checkConfig(cfg))

	// 2. Journal database
	if cfg.EnableJournal {
		report.Services = append(report.Services, checkJournal(cfg))
	}

	// 3. API server
	report.Services = append(report.Services, checkAPIServer(ctx, cfg))

	// 4. Gate status (breaker, guard, run)
	report.Services = append(report.Services, checkGateStatus(ctx, cfg))

	// Determine overall status
	for _, svc := range report.Services {
		if svc.Status == "UNHEALTHY" {
			report.Overall = "UNHEALTHY"
			break
		} else if svc.Status == "DEGRADED" && report.Overall != "UNHEALTHY" {
			report.Overall = "DEGRADED"
		}
	}

	// Print results
	fmt.Println()
	fmt.Println("Results:")
	fmt.Println("--------")
	for _, svc := range report.Services {
		statusIcon := "✓"
		if svc.Status == "UNHEALTHY" {
			statusIcon = "✗"
		} else if svc.Status == "DEGRADED" {
			statusIcon = "⚠"
		}
		fmt.Printf("%s %-20s %s %s\n", statusIcon, svc.Service, svc.Status, svc.Message)
	}

	fmt.Println()
	fmt.Printf("Overall Status: %s\n", report.Overall)

	// Output JSON if requested
	if len(os.Args) > 1 && os.Args[1] == "--json" {
		jsonData, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(jsonData))
	}

	// Exit code
	if report.Overall == "UNHEALTHY" {
		os.Exit(1)
	}
}

func checkConfig(cfg *config.Config) HealthStatus {
	status := HealthStatus{
		Service:   "Configuration",
		Status:    "HEALTHY",
		Timestamp: time.Now(),
	}

	if _, err := config.LoadGateFile(cfg.GateFile); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = err.Error()
		return status
	}
	if cfg.JWTSecret == "" {
		status.Status = "DEGRADED"
		status.Message = "JWT_SECRET not set, operator endpoints disabled"
		return status
	}

	status.Message = fmt.Sprintf("Port=%s Symbols=%v", cfg.Port, cfg.Symbols)
	return status
}

func checkJournal(cfg *config.Config) HealthStatus {
	status := HealthStatus{
		Service:   "Journal",
		Status:    "HEALTHY",
		Timestamp: time.Now(),
	}

	if _, err := os.Stat(cfg.DBPath); err != nil {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("No journal at %s yet", cfg.DBPath)
		return status
	}
	database, err := db.New(cfg.DBPath)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Open failed: %v", err)
		return status
	}
	defer database.Close()

	var n int
	if err := database.DB.QueryRow(`SELECT COUNT(*) FROM entry_decisions`).Scan(&n); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Query failed: %v", err)
		return status
	}

	status.Message = fmt.Sprintf("%d decisions journaled", n)
	return status
}

func get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}

func checkAPIServer(ctx context.Context, cfg *config.Config) HealthStatus {
	status := HealthStatus{
		Service:   "API Server",
		Status:    "HEALTHY",
		Timestamp: time.Now(),
	}

	resp, err := get(ctx, fmt.Sprintf("http://localhost:%s/health", cfg.Port))
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Not reachable: %v", err)
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return status
	}

	status.Message = "Running"
	return status
}

func checkGateStatus(ctx context.Context, cfg *config.Config) HealthStatus {
	status := HealthStatus{
		Service:   "Gate",
		Status:    "HEALTHY",
		Timestamp: time.Now(),
	}

	resp, err := get(ctx, fmt.Sprintf("http://localhost:%s/api/status", cfg.Port))
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Not reachable: %v", err)
		return status
	}
	defer resp.Body.Close()

	var body struct {
		Gate struct {
			Run struct {
				Enabled    bool   `json:"enabled"`
				Generation uint64 `json:"generation"`
			} `json:"run"`
			Breaker struct {
				Status  string `json:"status"`
				Tripped bool   `json:"tripped"`
				Reason  string `json:"reason"`
			} `json:"breaker"`
			Guard struct {
				OpenCount int `json:"open_count"`
			} `json:"guard"`
		} `json:"gate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("Bad status payload: %v", err)
		return status
	}

	g := body.Gate
	status.Message = fmt.Sprintf("run=%v gen=%d breaker=%s open=%d", g.Run.Enabled, g.Run.Generation, g.Breaker.Status, g.Guard.OpenCount)
	if g.Breaker.Tripped || !g.Run.Enabled {
		status.Status = "DEGRADED"
		if g.Breaker.Tripped {
			status.Message += " reason=" + g.Breaker.Reason
		}
	}
	return status
}
