/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ops console server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, file, CONSOLE_* env, flags)
  2. Open the store (SQLite or PostgreSQL)
  3. Connect the event publisher (RabbitMQ, or the log when no URL is set)
  4. Create API handler and start the compliance sweep
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: console.db)
           Use ":memory:" for in-memory database
  -config  Optional config file (yaml, json, toml)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the compliance sweep
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close publisher and database
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/console.db"

  # Run against Postgres with auth on
  CONSOLE_DB_DRIVER=postgres \
  CONSOLE_DATABASE_URL=postgres://console@localhost/console \
  CONSOLE_JWT_SECRET=dev-secret ./server

SEE ALSO:
  - config/config.go: All settings
  - api/server.go: Router configuration
  - cmd/token: Dev token helper
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ops-console/api"
	"github.com/warp/ops-console/compliance/bir"
	"github.com/warp/ops-console/compliance/ltfrb"
	"github.com/warp/ops-console/config"
	"github.com/warp/ops-console/earnings"
	"github.com/warp/ops-console/events"
	"github.com/warp/ops-console/store/postgres"
	"github.com/warp/ops-console/store/sqlite"
)

type store interface {
	api.Store
	Close() error
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := config.NewLogger(cfg.LogLevel)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	log.Info("database ready", zap.String("driver", cfg.DBDriver))

	// Event publisher
	var pub events.Publisher = events.NewLogPublisher(log.Named("events"))
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, log.Named("events"))
		if err != nil {
			return fmt.Errorf("failed to connect to broker: %w", err)
		}
		defer amqpPub.Close()
		pub = amqpPub
	}

	// Initialize handler
	handler := api.NewHandler(db, pub, api.Options{
		TakeRate: cfg.TakeRate,
		Rates: earnings.Rates{
			Commission:  cfg.CommissionRate,
			Withholding: cfg.WithholdingRate,
		},
		BIR: bir.Options{
			VATRate:   cfg.VATRate,
			SellerTIN: cfg.SellerTIN,
		},
		ResponseDays: cfg.ResponseDays,
		LTFRB: ltfrb.Options{
			MaxVehicleAge: cfg.MaxVehicleAge,
			Fares: ltfrb.FareMatrix{
				BaseFare:  cfg.BaseFare,
				PerKm:     cfg.PerKm,
				PerMinute: cfg.PerMinute,
				SurgeCap:  cfg.SurgeCap,
			},
		},
	}, log)

	handler.Sweep.CheckInterval = cfg.SweepInterval
	handler.Sweep.Enabled = cfg.SweepInterval > 0
	handler.Sweep.Start()
	defer handler.Sweep.Stop()

	if !cfg.AuthEnabled() {
		log.Warn("jwt_secret is empty, console API is unauthenticated")
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		JWTSecret:   cfg.JWTSecret,
		AdminRoles:  cfg.AdminRoles,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.DBDriver {
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return postgres.New(connectCtx, cfg.DatabaseURL)
	default:
		return sqlite.New(cfg.DBPath)
	}
}
