package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trading-gate/internal/gate"
	"trading-gate/internal/signal"
	"trading-gate/pkg/db"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func queryLimit(c *gin.Context, def, max int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"meta":   s.Meta,
		"uptime": time.Since(s.Meta.StartedAt).Round(time.Second).String(),
		"gate":   s.Gate.Status(),
		"api":    s.latency.Stats(),
	})
}

// getDecisions serves the in-memory ring of recent decisions.
func (s *Server) getDecisions(c *gin.Context) {
	if s.Monitor == nil || s.Monitor.Recent == nil {
		respondError(c, http.StatusServiceUnavailable, "MONITOR_DISABLED", "monitor not running")
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": s.Monitor.Recent.Recent(queryLimit(c, 50, 500))})
}

func (s *Server) getTrails(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trails": s.Gate.Trails().Snapshots()})
}

func (s *Server) getBreaker(c *gin.Context) {
	b := s.Gate.Breaker()
	left := b.CooldownRemaining()
	c.JSON(http.StatusOK, gin.H{
		"state":                 b.Snapshot(),
		"config":                b.Config(),
		"can_trade":             left == 0,
		"cooldown_remaining_ms": left.Milliseconds(),
	})
}

func (s *Server) getSummary(c *gin.Context) {
	if s.Monitor == nil {
		respondError(c, http.StatusServiceUnavailable, "MONITOR_DISABLED", "monitor not running")
		return
	}
	c.JSON(http.StatusOK, s.Monitor.Summary())
}

func (s *Server) journalReady(c *gin.Context) bool {
	if s.Journal == nil {
		respondError(c, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "journal not configured")
		return false
	}
	return true
}

func (s *Server) getJournalDecisions(c *gin.Context) {
	if !s.journalReady(c) {
		return
	}
	f := db.DecisionFilter{
		Symbol: c.Query("symbol"),
		Action: c.Query("action"),
		Limit:  queryLimit(c, 100, 1000),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_SINCE", "since must be RFC3339")
			return
		}
		f.Since = t
	}
	rows, err := s.Journal.ListDecisions(c.Request.Context(), f)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": rows})
}

func (s *Server) getJournalDecision(c *gin.Context) {
	if !s.journalReady(c) {
		return
	}
	row, err := s.Journal.GetDecision(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "decision not found")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) getJournalReasons(c *gin.Context) {
	if !s.journalReady(c) {
		return
	}
	window := 24 * time.Hour
	if w := c.Query("window"); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil || d <= 0 {
			respondError(c, http.StatusBadRequest, "INVALID_WINDOW", "window must be a positive duration")
			return
		}
		window = d
	}
	counts, err := s.Journal.CountByReason(c.Request.Context(), time.Now().Add(-window))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"window": window.String(), "reasons": counts})
}

func (s *Server) getJournalBreaker(c *gin.Context) {
	if !s.journalReady(c) {
		return
	}
	rows, err := s.Journal.ListBreakerTransitions(c.Request.Context(), queryLimit(c, 50, 500))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitions": rows})
}

func (s *Server) getJournalGuardFixes(c *gin.Context) {
	if !s.journalReady(c) {
		return
	}
	rows, err := s.Journal.ListGuardFixes(c.Request.Context(), queryLimit(c, 50, 500))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"fixes": rows})
}

func (s *Server) resetBreaker(c *gin.Context) {
	s.Gate.Breaker().Reset()
	log.Printf("api: breaker reset by %s", CurrentOperator(c))
	c.JSON(http.StatusOK, gin.H{"state": s.Gate.Breaker().Snapshot()})
}

func (s *Server) enableRun(c *gin.Context) {
	tok := s.Gate.Run().Enable()
	log.Printf("api: trading enabled by %s (generation %d)", CurrentOperator(c), tok.Generation)
	c.JSON(http.StatusOK, gin.H{"run": tok})
}

func (s *Server) disableRun(c *gin.Context) {
	tok := s.Gate.Run().Disable()
	log.Printf("api: trading disabled by %s (generation %d)", CurrentOperator(c), tok.Generation)
	c.JSON(http.StatusOK, gin.H{"run": tok})
}

func (s *Server) restartRun(c *gin.Context) {
	tok := s.Gate.Run().Restart()
	log.Printf("api: run restarted by %s (generation %d)", CurrentOperator(c), tok.Generation)
	c.JSON(http.StatusOK, gin.H{"run": tok})
}

func (s *Server) reconcileGuard(c *gin.Context) {
	g := s.Gate.Guard()
	rep, err := g.ForceReconcile(c.Request.Context(), g.Config().Scope)
	if err != nil {
		respondError(c, http.StatusBadGateway, "BROKER_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": rep, "state": g.Snapshot()})
}

// submitSignal runs one signal through the gate. Denials are 200 responses;
// the decision carries the reason.
func (s *Server) submitSignal(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	sig, err := signal.FromMap(payload)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_SIGNAL", err.Error())
		return
	}
	d := s.Gate.Evaluate(c.Request.Context(), sig)
	c.JSON(http.StatusOK, d)
}

func (s *Server) tradeClosed(c *gin.Context) {
	var tr gate.TradeResult
	if err := c.ShouldBindJSON(&tr); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}
	s.Gate.OnTradeClosed(c.Request.Context(), tr)
	c.JSON(http.StatusOK, gin.H{
		"breaker": s.Gate.Breaker().Snapshot(),
		"guard":   s.Gate.Guard().Snapshot(),
	})
}
