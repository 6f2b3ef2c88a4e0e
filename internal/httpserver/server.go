// Package httpserver is the HTTP and WebSocket surface: ticket CRUD, job
// submission and lifecycle endpoints, and the realtime upgrade. Handlers
// depend on narrow store interfaces so they are testable without Postgres
// or Redis.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/armandavtyann/ticket/internal/config"
	"github.com/armandavtyann/ticket/internal/gateway"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Deps collects everything the router needs. All fields are required.
type Deps struct {
	Jobs    JobStore
	Tickets TicketStore
	Guard   IdempotencyGuard
	Enqueue Enqueuer
	Flags   CancelFlagSetter
	Bus     EventPublisher
	Hub     *gateway.Hub
	Logger  *slog.Logger
}

type Server struct {
	cfg    config.Config
	engine *gin.Engine
	logger *slog.Logger
}

func New(cfg config.Config, d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(d.Logger), corsMiddleware(cfg.FrontendURL))

	jobs := &jobsHandler{
		store:   d.Jobs,
		guard:   d.Guard,
		enqueue: d.Enqueue,
		flags:   d.Flags,
		bus:     d.Bus,
		logger:  d.Logger,
	}
	tix := &ticketsHandler{store: d.Tickets, logger: d.Logger}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := authMiddleware(cfg.JWTSecret, d.Logger)

	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.FrontendURL),
	}
	engine.GET("/ws", auth, func(c *gin.Context) {
		who := identityFrom(c)
		gateway.ServeWS(d.Hub, upgrader, d.Logger, c.Writer, c.Request, who.ID, who.IsAdmin())
	})

	api := engine.Group("/api", auth)
	{
		api.GET("/tickets", tix.list)
		api.POST("/tickets", tix.create)
		api.GET("/tickets/:id", tix.get)
		api.PUT("/tickets/:id", tix.update)
		api.PATCH("/tickets/:id", tix.update)
		api.DELETE("/tickets/:id", tix.remove)

		api.POST("/jobs", jobs.create)
		api.GET("/jobs", jobs.list)
		api.GET("/jobs/:id", jobs.get)
		api.POST("/jobs/:id/cancel", jobs.cancel)
	}

	return &Server{cfg: cfg, engine: engine, logger: d.Logger}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			logger.Error("request failed", append(attrs, "errs", c.Errors.String())...)
			return
		}
		logger.Info("request", attrs...)
	}
}

func corsMiddleware(frontendURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && origin == frontendURL {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originChecker(frontendURL string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == frontendURL
	}
}
