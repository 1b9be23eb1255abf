/*
main.go - Application entry point

PURPOSE:
  Starts the production reporting API. Loads configuration, opens the
  store, wires the SoftPro client and import service, and serves HTTP
  with graceful shutdown.

STARTUP SEQUENCE:
  1. Load config.toml, .env and environment
  2. Apply command-line flags
  3. Open the store (SQLite or PostgreSQL) and migrate
  4. Create SoftPro client and import service
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to config.toml (default: config.toml, optional)
  -port    HTTP server port (overrides config)
  -db      Database DSN (overrides config). For sqlite3, a file path or
           ":memory:"

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Local SQLite with a demo scenario loaded from the dashboard
  ./server -db="./data/reports.db"

  # PostgreSQL via environment
  DATABASE_DRIVER=pgx DATABASE_URL=postgres://... ./server

SEE ALSO:
  - config/config.go: All settings and environment variables
  - api/server.go: Router configuration
  - cmd/reportctl: Command-line imports and reports
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/titledesk/production-reports/api"
	"github.com/titledesk/production-reports/config"
	"github.com/titledesk/production-reports/ingest"
	"github.com/titledesk/production-reports/logging"
	"github.com/titledesk/production-reports/store/sqlstore"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.toml", "Path to config.toml")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dsn := flag.String("db", "", "Database DSN (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}

	log := logging.New(cfg.Log)

	opts, err := cfg.ReportOptions()
	if err != nil {
		log.WithError(err).Fatal("invalid report options")
	}

	// Initialize store
	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	var fetcher ingest.Fetcher
	if cfg.SoftPro.BaseURL != "" {
		fetcher = ingest.NewSoftProClient(cfg.SoftPro.BaseURL, cfg.SoftPro.Timeout.Duration)
	} else {
		log.Warn("softpro.base_url not set, revenue fetch is disabled")
	}
	imports := ingest.NewService(fetcher, store, log)
	imports.BackfillPause = cfg.SoftPro.BackfillPause.Duration

	handler := api.NewHandler(store, imports, opts, log)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// The write timeout covers a full SoftPro fetch.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.SoftPro.Timeout.Duration + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"port":   cfg.Server.Port,
			"driver": cfg.Database.Driver,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server stopped")
}
