// Package router assembles the Gin engine, middleware chain, and routes, and
// owns the HTTP server lifecycle.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/interfaces/http/handlers"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// Handlers groups the endpoint handlers wired into the router.
type Handlers struct {
	Health     *handlers.HealthHandler
	Admin      *handlers.AdminHandler
	Scan       *handlers.ScanHandler
	Compliance *handlers.ComplianceHandler
}

// Middleware groups the ordered middleware chain. Identity runs first so the
// limiter and the scanner see the resolved caller.
type Middleware struct {
	Identity      gin.HandlerFunc
	Observability gin.HandlerFunc
	RateLimit     gin.HandlerFunc
	Security      gin.HandlerFunc
}

// Router owns the engine and the HTTP server.
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
	log    logger.Logger
	server *http.Server
}

// New builds the router with all routes registered.
func New(
	cfg *config.Config,
	log logger.Logger,
	tracer trace.Tracer,
	registry *prometheus.Registry,
	h Handlers,
	mw Middleware,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine: engine,
		cfg:    cfg,
		log:    log.WithComponent("router"),
	}
	r.setup(registry, h, mw)
	return r
}

func (r *Router) setup(registry *prometheus.Registry, h Handlers, mw Middleware) {
	r.engine.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", constants.HeaderRequestID},
		ExposeHeaders: []string{
			constants.HeaderRequestID,
			constants.HeaderRateLimitLimit,
			constants.HeaderRateLimitRemaining,
			constants.HeaderRateLimitReset,
			constants.HeaderRetryAfter,
		},
		MaxAge: 12 * time.Hour,
	}
	r.engine.Use(cors.New(corsConfig))

	// Operational endpoints sit outside the inspection chain so a blocked
	// client can still be probed and scraped.
	r.engine.GET("/health/live", h.Health.LivenessCheck)
	r.engine.GET("/health/ready", h.Health.ReadinessCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	if r.cfg.Server.EnablePprof {
		pprof.Register(r.engine)
	}

	// Inspection chain order: identity, tracing and metrics, rate limiting,
	// then content security.
	api := r.engine.Group("/api")
	api.Use(mw.Identity, mw.Observability, mw.RateLimit, mw.Security)
	{
		admin := api.Group("/admin")
		{
			admin.GET("/rules", h.Admin.ListRules)
			admin.POST("/rules", h.Admin.AddRule)
			admin.DELETE("/rules/:id", h.Admin.RemoveRule)
			admin.POST("/clients/:key/reset", h.Admin.ResetClient)
			admin.GET("/compliance/report", h.Compliance.Report)
		}
		api.POST("/scan", h.Scan.ScanContent)
		api.POST("/uploads/scan", h.Scan.ScanUpload)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             string(constants.ErrCodeNotFound),
			"error_description": "The requested resource was not found",
		})
	})
}

// Start runs the HTTP server and blocks until it stops.
func (r *Router) Start() error {
	r.server = &http.Server{
		Addr:           r.cfg.Server.Addr(),
		Handler:        r.engine,
		ReadTimeout:    r.cfg.Server.ReadTimeout,
		WriteTimeout:   r.cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	r.log.Info(context.Background(), "starting HTTP server",
		logger.String("address", r.server.Addr))

	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.log.Info(ctx, "stopping HTTP server")
	return r.server.Shutdown(ctx)
}

// Engine exposes the underlying engine for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
