// Command worker consumes conversion tasks from the queue: it decodes the
// submitted PDF, runs it through OCR and the image pipeline, stores the
// source document alongside the output, and records the result locator on
// the task.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/markmuse/markmuse"
	"github.com/markmuse/markmuse/config"
	"github.com/markmuse/markmuse/dbopen"
	"github.com/markmuse/markmuse/ocr"
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
		fatal(logger, "config", err)
	}
	if cfg.OCR.APIKey == "" {
		fatal(logger, "config", fmt.Errorf("MISTRAL_API_KEY is not set"))
	}

	svc, err := markmuse.NewService(cfg, logger)
	if err != nil {
		fatal(logger, "init", err)
	}

	db, err := dbopen.Open(cfg.Tasks.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		fatal(logger, "queue db", err)
	}
	defer db.Close()

	queue := taskq.New(db, taskq.Options{
		Visibility:  time.Duration(cfg.Tasks.VisibilitySec) * time.Second,
		MaxAttempts: cfg.Tasks.MaxAttempts,
		Logger:      logger,
	})
	if err := queue.EnsureSchema(context.Background()); err != nil {
		fatal(logger, "queue schema", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &worker{svc: svc, queue: queue, cfg: cfg, logger: logger}
	queue.Run(ctx, w.handle)
}

type worker struct {
	svc    *markmuse.Service
	queue  *taskq.Q
	cfg    *config.Config
	logger *slog.Logger
}

// handle processes one convert_pdf task end to end and returns the final
// document locator as the task result.
func (w *worker) handle(ctx context.Context, task *taskq.Task) (string, error) {
	if task.Kind != taskq.KindConvertPDF {
		return "", fmt.Errorf("unknown task kind %q", task.Kind)
	}
	payload, err := taskq.DecodeConvertPayload(task.Payload)
	if err != nil {
		return "", err
	}

	w.logger.Info("task claimed", "task_id", task.ID, "attempt", task.Attempts)
	_ = w.queue.SetProgress(ctx, task.ID, 5, "task started")

	visibility := time.Duration(w.cfg.Tasks.VisibilitySec) * time.Second
	opts := markmuse.RunOptions{
		OutputName:  payload.Filename,
		Enhance:     payload.Enhance,
		Parallelism: payload.Parallel,
		OnProgress: func(percent int, message string) {
			// Image extraction spans 10–90% of the task's lifetime.
			_ = w.queue.SetProgress(ctx, task.ID, 10+percent*80/100, message)
			// Heartbeat: a conversion that still reports progress keeps
			// its claim, however long the document takes.
			_ = w.queue.Extend(ctx, task.ID, visibility)
		},
	}

	if payload.URL != "" {
		result, err := w.svc.ConvertURL(ctx, payload.URL, opts)
		if err != nil {
			return "", err
		}
		return result.DocumentLocator.URL, nil
	}

	// Inline submission: materialise the PDF, preflight, convert, and keep
	// the source document next to the output.
	data, err := base64.StdEncoding.DecodeString(payload.FileBase64)
	if err != nil {
		return "", fmt.Errorf("decode pdf payload: %w", err)
	}

	name := payload.Filename
	if name == "" {
		name = task.ID
	}

	tmpDir, err := os.MkdirTemp("", "markmuse-")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPDF := filepath.Join(tmpDir, name+".pdf")
	if err := os.WriteFile(tmpPDF, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp pdf: %w", err)
	}

	if _, err := ocr.Preflight(tmpPDF, w.cfg.OCR.MaxPages, w.cfg.MaxFileBytes()); err != nil {
		return "", err
	}

	_ = w.queue.SetProgress(ctx, task.ID, 10, "uploading source document")
	if _, err := w.svc.StoreSource(ctx, name, data); err != nil {
		w.logger.Warn("source pdf not stored", "task_id", task.ID, "error", err)
	}

	result, err := w.svc.ConvertFile(ctx, tmpPDF, opts)
	if err != nil {
		return "", err
	}

	_ = w.queue.SetProgress(ctx, task.ID, 95, "assembly complete")
	return result.DocumentLocator.URL, nil
}

func fatal(logger *slog.Logger, stage string, err error) {
	logger.Error(stage, "error", err)
	os.Exit(1)
}
