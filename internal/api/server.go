package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/proxyscope/internal/config"
	"github.com/proxyscope/internal/engine"
	"github.com/proxyscope/internal/metrics"
	"github.com/proxyscope/internal/table"
)

type Server struct {
	config      *config.Config
	table       *table.Table
	metrics     *metrics.Collector
	engine      *engine.Coordinator
	router      *gin.Engine
	httpServer  *http.Server
	rateLimiter *RateLimiter
}

type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	rps := float64(requestsPerMinute) / 60.0
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    requestsPerMinute / 10, // Allow bursts
	}
}

func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = limiter

	return limiter
}

func NewServer(cfg *config.Config, tbl *table.Table, metricsCollector *metrics.Collector,
	eng *engine.Coordinator) *Server {

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:      cfg,
		table:       tbl,
		metrics:     metricsCollector,
		engine:      eng,
		router:      router,
		rateLimiter: NewRateLimiter(cfg.API.RateLimitPerMinute),
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	// Public endpoints
	s.router.GET("/health", s.handleHealth)

	// Metrics endpoint (usually scraped by Prometheus)
	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Protected endpoints
	protected := s.router.Group("/")
	if s.config.API.EnableAPIKeyAuth {
		protected.Use(s.authMiddleware())
	}
	if s.config.API.EnableIPRateLimit {
		protected.Use(s.rateLimitMiddleware())
	}

	protected.POST("/scrape", s.handleScrape)
	protected.POST("/check", s.handleCheck)
	protected.POST("/stop", s.handleStop)
	protected.GET("/progress", s.handleProgress)
	protected.GET("/proxies", s.handleGetProxies)
	protected.POST("/proxies/import", s.handleImport)
	protected.GET("/proxies/export", s.handleExport)
	protected.DELETE("/proxies", s.handleDeleteProxies)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.API.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Infof("Starting API server on %s", s.config.API.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Middleware

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   statusCode,
			"duration": duration.Milliseconds(),
			"ip":       c.ClientIP(),
		}).Info("API request")
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		s.metrics.RecordAPIRequest(method, path, status)
		s.metrics.RecordAPIDuration(method, path, duration)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	expectedKey := os.Getenv(s.config.API.APIKeyEnv)
	if expectedKey == "" {
		log.Warn("API key not set in environment, authentication disabled")
	}

	return func(c *gin.Context) {
		if expectedKey == "" {
			c.Next()
			return
		}

		// Check header first
		apiKey := c.GetHeader("X-Api-Key")
		if apiKey == "" {
			// Check query parameter
			apiKey = c.Query("key")
		}

		if apiKey != expectedKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or missing API key",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := s.rateLimiter.GetLimiter(ip)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type scrapeRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleScrape(c *gin.Context) {
	var req scrapeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	urls := req.URLs
	if len(urls) == 0 {
		urls = s.config.EnabledSources()
	}
	if len(urls) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "No source URLs given and no sources configured",
		})
		return
	}

	if err := s.engine.Scrape(urls); err != nil {
		s.writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Scrape started",
		"sources": len(urls),
	})
}

func (s *Server) handleCheck(c *gin.Context) {
	targets := s.table.Targets()
	if len(targets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "No proxies to check",
		})
		return
	}

	if err := s.engine.Check(targets); err != nil {
		s.writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Check started",
		"targets": len(targets),
	})
}

func (s *Server) handleStop(c *gin.Context) {
	s.engine.Stop()
	c.JSON(http.StatusOK, gin.H{
		"message": "Stop requested",
	})
}

func (s *Server) handleProgress(c *gin.Context) {
	done, total := s.engine.Progress()

	response := gin.H{
		"running": s.engine.Running(),
		"done":    done,
		"total":   total,
	}
	if addr := s.engine.RealAddr(); addr != "" {
		response["real_address"] = addr
	}

	if last, ok := s.table.LastBatch(); ok {
		batch := gin.H{
			"action":     string(last.Action),
			"total":      last.Total,
			"done":       last.Done,
			"cancelled":  last.Cancelled,
			"elapsed_ms": last.Elapsed.Milliseconds(),
		}
		if last.Err != "" {
			batch["error"] = last.Err
		}
		response["last_batch"] = batch
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleGetProxies(c *gin.Context) {
	format := c.Query("format")
	acceptHeader := c.GetHeader("Accept")
	wantsJSON := format == "json" || strings.Contains(acceptHeader, "application/json")

	rows := s.table.Rows()

	if wantsJSON {
		c.JSON(http.StatusOK, gin.H{
			"total":   len(rows),
			"proxies": rows,
		})
		return
	}

	// Plain text format (one per line)
	var result strings.Builder
	for _, row := range rows {
		result.WriteString(row.Proxy.Format(s.config.Engine.Delimiter))
		result.WriteString("\n")
	}
	c.String(http.StatusOK, result.String())
}

func (s *Server) handleImport(c *gin.Context) {
	added, duplicates, err := s.table.Import(c.Request.Body, s.config.Engine.Delimiter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read proxy list",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"added":      added,
		"duplicates": duplicates,
		"total":      s.table.Len(),
	})
}

func (s *Server) handleExport(c *gin.Context) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="proxies.txt"`)
	c.Status(http.StatusOK)
	if err := s.table.Export(c.Writer, s.config.Engine.Delimiter); err != nil {
		log.Errorf("Failed to export proxies: %v", err)
	}
}

type deleteRequest struct {
	Rows []int `json:"rows"`
}

func (s *Server) handleDeleteProxies(c *gin.Context) {
	var req deleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	if len(req.Rows) == 0 {
		s.table.Clear()
		c.JSON(http.StatusOK, gin.H{
			"message": "Table cleared",
		})
		return
	}

	removed := s.table.RemoveRows(req.Rows)
	c.JSON(http.StatusOK, gin.H{
		"removed": removed,
		"total":   s.table.Len(),
	})
}

func (s *Server) writeEngineError(c *gin.Context, err error) {
	switch e := err.(type) {
	case *engine.ConfigError:
		c.JSON(http.StatusBadRequest, gin.H{"error": e.Error()})
	case *engine.ResolveError:
		c.JSON(http.StatusBadGateway, gin.H{"error": e.Error()})
	default:
		if err == engine.ErrBatchRunning {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
