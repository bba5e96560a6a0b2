package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	appservice "github.com/turtacn/aegis/internal/application/service"
	"github.com/turtacn/aegis/internal/config"
	"github.com/turtacn/aegis/internal/dlp"
	"github.com/turtacn/aegis/internal/infrastructure/audit"
	"github.com/turtacn/aegis/internal/infrastructure/monitoring"
	"github.com/turtacn/aegis/internal/infrastructure/quarantine"
	"github.com/turtacn/aegis/internal/interfaces/http/handlers"
	"github.com/turtacn/aegis/internal/interfaces/http/middleware"
	"github.com/turtacn/aegis/internal/interfaces/http/router"
	"github.com/turtacn/aegis/internal/ratelimit"
	"github.com/turtacn/aegis/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanup, err := monitoring.InitTracer(&cfg.Tracing, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize tracer", err)
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	// Audit pipeline: structured log always, database for compliance queries,
	// Kafka and webhook when configured.
	auditStore, err := audit.NewGormStore(cfg.Audit.Database, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to open audit store", err)
	}
	sinks := []audit.Sink{audit.NewLoggerSink(appLogger), auditStore}
	if cfg.Audit.Kafka.Enabled {
		sinks = append(sinks, audit.NewKafkaSink(cfg.Audit.Kafka, appLogger))
	}
	if cfg.DLP.WebhookURL != "" {
		sinks = append(sinks, audit.NewWebhookSink(cfg.DLP.WebhookURL, appLogger))
	}
	dispatcher := audit.NewDispatcher(cfg.Audit.QueueSize, sinks, metrics, appLogger)
	defer dispatcher.Close()

	// Rate limiter over the configured state store.
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:        cfg.Redis.Addresses,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		defer redisClient.Close()
	}

	var stateStore ratelimit.ClientStateStore
	if cfg.RateLimit.Store == "redis" {
		stateStore, err = ratelimit.NewRedisStore(redisClient, cfg.RateLimit.Retention, appLogger)
		if err != nil {
			appLogger.Fatal(ctx, "failed to create redis state store", err)
		}
	} else {
		stateStore = ratelimit.NewMemoryStore()
	}

	limiter, err := ratelimit.NewLimiter(stateStore, &cfg.RateLimit, ratelimit.SystemClock(), dispatcher, metrics, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to create rate limiter", err)
	}
	limiter.StartSweeper()
	defer limiter.Stop()

	// DLP scanner over the pattern library.
	library := dlp.NewLibrary(appLogger)
	if cfg.DLP.CustomPatternsFile != "" {
		if err := library.LoadCustomFile(cfg.DLP.CustomPatternsFile); err != nil {
			appLogger.Fatal(ctx, "failed to load custom patterns", err)
		}
		if err := library.WatchCustomFile(ctx, cfg.DLP.CustomPatternsFile); err != nil {
			appLogger.Error(ctx, "pattern hot reload unavailable", err)
		}
	}
	scanner, err := dlp.NewScanner(library, cfg.DLP.Whitelist, metrics, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to create scanner", err)
	}

	var quarantineStore *quarantine.FSStore
	if cfg.DLP.AutoQuarantine {
		quarantineStore, err = quarantine.NewFSStore(cfg.DLP.QuarantineDir, appLogger)
		if err != nil {
			appLogger.Fatal(ctx, "failed to create quarantine store", err)
		}
	}

	inspection := appservice.NewInspectionService(
		scanner, dispatcher, quarantineStore, metrics, cfg.DLP.AutoQuarantine, appLogger)
	reporter := dlp.NewComplianceReporter(auditStore, library, appLogger)

	// HTTP wiring.
	tracer := monitoring.Tracer(&cfg.Tracing)
	r := router.New(cfg, appLogger, tracer, registry,
		router.Handlers{
			Health:     handlers.NewHealthHandler(redisClient, appLogger),
			Admin:      handlers.NewAdminHandler(limiter, dispatcher, appLogger),
			Scan:       handlers.NewScanHandler(scanner, inspection, appLogger),
			Compliance: handlers.NewComplianceHandler(reporter, appLogger),
		},
		router.Middleware{
			Identity:      middleware.IdentityMiddleware(&cfg.Session, appLogger),
			Observability: middleware.ObservabilityMiddleware(tracer, metrics),
			RateLimit:     middleware.RateLimitMiddleware(limiter, &cfg.RateLimit, appLogger),
			Security:      middleware.SecurityMiddleware(scanner, dispatcher, metrics, &cfg.DLP, appLogger),
		},
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(r.Start)
	group.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-groupCtx.Done():
			return groupCtx.Err()
		case sig := <-quit:
			appLogger.Info(ctx, "shutdown signal received",
				logger.String("signal", sig.String()))
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return r.Stop(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		appLogger.Error(ctx, "server exited with error", err)
	}
	appLogger.Info(ctx, "server stopped")
}
