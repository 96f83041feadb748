package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tsungho/knowsync/internal/engine"
)

// Runner is the slice of the engine the API needs
type Runner interface {
	RunSync(ctx context.Context) (*engine.Report, error)
	InFlight() bool
}

// Server exposes the sync trigger and status endpoints
type Server struct {
	runner  Runner
	lastRun *LastRun
	logger  *slog.Logger
}

// NewServer creates an API server around a runner
func NewServer(runner Runner, lastRun *LastRun, logger *slog.Logger) *Server {
	return &Server{
		runner:  runner,
		lastRun: lastRun,
		logger:  logger,
	}
}

// syncRequest is the optional POST /sync body
type syncRequest struct {
	Async bool `json:"async"`
}

// Router builds the gin router with all endpoints registered
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/", s.handleIndex)
	router.GET("/health", s.handleHealth)
	router.POST("/sync", s.handleSync)
	router.GET("/status", s.handleStatus)

	return router
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "knowsync",
		"version": "1.0.0",
		"endpoints": gin.H{
			"/":       "service info",
			"/health": "health check",
			"/sync":   "POST - trigger a sync run",
			"/status": "GET - report of the most recent run",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "knowsync",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleSync triggers a run. With {"async": true} the run happens on a
// background goroutine and the report is readable later at /status;
// otherwise the call blocks and returns the report directly. A run
// already in flight yields 409 in both modes.
func (s *Server) handleSync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	s.logger.Info("sync requested", "async", req.Async)

	if req.Async {
		if s.runner.InFlight() {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync run is already in flight"})
			return
		}

		go func() {
			report, err := s.runner.RunSync(context.Background())
			if err != nil {
				// Lost the race to another run; that run owns /status
				s.logger.Warn("background sync not started", "error", err)
				return
			}
			s.lastRun.Set(report)
		}()

		c.JSON(http.StatusAccepted, gin.H{
			"status":    "started",
			"message":   "sync run started in background",
			"async":     true,
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}

	report, err := s.runner.RunSync(c.Request.Context())
	if err != nil {
		if errors.Is(err, engine.ErrRunInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync run is already in flight"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.lastRun.Set(report)
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleStatus(c *gin.Context) {
	report, updatedAt := s.lastRun.Get()
	if report == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "never_run",
			"message": "no sync has run yet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        report.Status,
		"report":        report,
		"last_run_time": updatedAt.Format(time.RFC3339),
	})
}
