/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll statement server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, LIQ_* variables, flags)
  2. Initialize logger
  3. Initialize SQLite store (migrates and seeds defaults)
  4. Pick the notification dispatcher
  5. Create API handler and router
  6. Start the published PDF janitor
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides LIQ_PORT)
  -db      SQLite database path (overrides LIQ_DB_PATH)
           Use ":memory:" for in-memory database
  -env     .env file to load (default: .env)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the janitor
  4. Close database connection

EXAMPLES:
  ./server -db="./data/liquidaciones.db"
  ./server -db=":memory:" -port=3000
  LIQ_NOTIFIER=sendgrid LIQ_SENDGRID_KEY=... ./server

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/escuelademusica/liquidaciones/api"
	"github.com/escuelademusica/liquidaciones/config"
	"github.com/escuelademusica/liquidaciones/internal/logger"
	"github.com/escuelademusica/liquidaciones/notify"
	"github.com/escuelademusica/liquidaciones/store/sqlite"
)

func main() {
	// Flags
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	envFile := flag.String("env", ".env", "Environment file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger.Init(cfg.LogLevel)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.LogError("failed to initialize database", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer store.Close()

	handler := api.NewHandler(store, cfg, newDispatcher(cfg))
	router := api.NewRouter(handler)

	janitor := api.NewPDFJanitor(cfg.PDFDir, cfg.PDFRetention, cfg.JanitorInterval)
	janitor.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // notification batches render one PDF per teacher
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.LogInfo("server starting", "addr", server.Addr, "db", cfg.DBPath, "notifier", cfg.Notifier)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError("server failed", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.LogInfo("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.LogError("server forced to shutdown", err)
	}
	janitor.Stop()

	logger.LogInfo("server stopped")
}

func newDispatcher(cfg *config.Config) notify.Dispatcher {
	if cfg.Notifier == config.NotifierSendGrid {
		return notify.NewEmailDispatcher(cfg.SendGridKey, cfg.FromName, cfg.FromEmail)
	}
	return notify.NewLogDispatcher()
}
