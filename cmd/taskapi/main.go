// Command taskapi serves the conversion task HTTP API: clients submit PDFs
// and poll task status; workers (cmd/worker) pick tasks up from the shared
// queue database.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/markmuse/markmuse/config"
	"github.com/markmuse/markmuse/dbopen"
	"github.com/markmuse/markmuse/taskapi"
	"github.com/markmuse/markmuse/taskq"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "YAML config file")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	db, err := dbopen.Open(cfg.Tasks.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		logger.Error("queue db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	queue := taskq.New(db, taskq.Options{Logger: logger})
	if err := queue.EnsureSchema(context.Background()); err != nil {
		logger.Error("queue schema", "error", err)
		os.Exit(1)
	}

	api := taskapi.New(queue, logger)
	srv := &http.Server{
		Addr:              cfg.Tasks.Listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("task api listening", "addr", cfg.Tasks.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}
