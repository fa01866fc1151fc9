package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/havenstay/backend/internal/audit"
	"github.com/havenstay/backend/internal/config"
	"github.com/havenstay/backend/internal/database"
	"github.com/havenstay/backend/internal/handlers"
	"github.com/havenstay/backend/internal/logger"
	mW "github.com/havenstay/backend/internal/middleware"
	"github.com/havenstay/backend/internal/reconciliation"
	"github.com/havenstay/backend/internal/services"
	"github.com/havenstay/backend/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// @title Havenstay Payments API
// @version 1.0
// @description Booking payment submission and staff adjudication
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	envFile := flag.String("config", ".env", "path to the .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, _, err := logger.New(logger.Config{
		Environment: logger.Environment(cfg.Log.Environment),
		Level:       cfg.Log.Level,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()

	db, dialect, err := database.Open(ctx, cfg.Database, zl)
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	ledgers := store.NewSQLStore(db, dialect)
	if err := ledgers.Migrate(ctx); err != nil {
		zl.Fatal("failed to migrate schema", zap.Error(err))
	}

	redisClient := database.InitRedis(ctx, cfg.Redis, zl)
	if redisClient != nil {
		defer redisClient.Close()
	}

	hooks := audit.Chain{
		audit.NewLogHook(zl),
		audit.NewActivityLogger(ledgers),
		audit.NewRedisNotifier(redisClient, cfg.Payments.NotificationQueue),
	}

	engine := reconciliation.New(ledgers,
		reconciliation.WithHook(hooks),
		reconciliation.WithLogger(zl.Named("reconciliation")),
		reconciliation.WithHookTimeout(cfg.Payments.HookTimeout),
	)
	paymentService := services.NewPaymentService(engine, ledgers, services.RetryPolicy{
		Retries:   cfg.Payments.ConflictRetries,
		BaseDelay: cfg.Payments.RetryBaseDelay,
	}, zl.Named("payments"))
	paymentHandler := handlers.NewPaymentHandler(paymentService, zl.Named("http"))

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.RequestLogger(zl.Named("access")))
	r.Use(mW.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// CORS
	r.Use(mW.CORS(cfg.CORS.AllowedOrigins))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			services.SendErrorResponse(w, "database unavailable", http.StatusServiceUnavailable, nil)
			return
		}
		services.SendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		paymentHandler.Mount(r, mW.Auth(cfg.JWT.SecretKey))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		zl.Info("server starting", zap.String("addr", server.Addr), zap.String("driver", string(dialect)))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	zl.Info("server stopped")
}
