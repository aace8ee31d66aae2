package api

import (
	"net/http"
	"time"

	"trading-gate/internal/events"
	"trading-gate/internal/gate"
	"trading-gate/internal/monitor"
	"trading-gate/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires the operator HTTP endpoints around the gate.
type Server struct {
	Router    *gin.Engine
	Gate      *gate.Gate
	Bus       *events.Bus
	Monitor   *monitor.Monitor
	Journal   *db.JournalQueries
	JWTSecret string
	Meta      SystemMeta

	limiter *ipLimiter
	latency *monitor.LatencyHistogram
}

// SystemMeta describes the runtime exposed on /api/status.
type SystemMeta struct {
	DryRun    bool      `json:"dry_run"`
	Symbols   []string  `json:"symbols"`
	Signals   string    `json:"signal_source"`
	Timezone  string    `json:"timezone"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// Deps groups the collaborators of the API server. Monitor and Journal are optional.
type Deps struct {
	Gate      *gate.Gate
	Bus       *events.Bus
	Monitor   *monitor.Monitor
	Journal   *db.JournalQueries
	JWTSecret string
	Meta      SystemMeta
	RateLimit float64
	Burst     int
}

func NewServer(d Deps) *Server {
	r := gin.New()
	s := &Server{
		Router:    r,
		Gate:      d.Gate,
		Bus:       d.Bus,
		Monitor:   d.Monitor,
		Journal:   d.Journal,
		JWTSecret: d.JWTSecret,
		Meta:      d.Meta,
		limiter:   newIPLimiter(d.RateLimit, d.Burst),
		latency:   monitor.NewLatencyHistogram(1000),
	}

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(s.latency))
	r.Use(RateLimitMiddleware(s.limiter))
	r.Use(CORSMiddleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(monitor.Handler()))
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/decisions", s.getDecisions)
		api.GET("/trails", s.getTrails)
		api.GET("/breaker", s.getBreaker)
		api.GET("/summary", s.getSummary)

		journal := api.Group("/journal")
		{
			journal.GET("/decisions", s.getJournalDecisions)
			journal.GET("/decisions/:id", s.getJournalDecision)
			journal.GET("/reasons", s.getJournalReasons)
			journal.GET("/breaker", s.getJournalBreaker)
			journal.GET("/guard-fixes", s.getJournalGuardFixes)
		}

		// Operator actions
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/breaker/reset", s.resetBreaker)
			protected.POST("/run/enable", s.enableRun)
			protected.POST("/run/disable", s.disableRun)
			protected.POST("/run/restart", s.restartRun)
			protected.POST("/guard/reconcile", s.reconcileGuard)
			protected.POST("/signals", s.submitSignal)
			protected.POST("/trades/closed", s.tradeClosed)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
