// Command markmuse converts PDF documents to Markdown from the command
// line: a single local file, a remote URL, or a whole folder. With -mcp it
// instead serves the converter as an MCP tool over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/markmuse/markmuse"
	"github.com/markmuse/markmuse/config"
	"github.com/markmuse/markmuse/convert"
)

func main() {
	var (
		file       = flag.String("file", "", "local PDF file to convert")
		pdfURL     = flag.String("url", "", "remote PDF URL to convert")
		batch      = flag.Bool("batch", false, "convert every PDF in -input-dir")
		inputDir   = flag.String("input-dir", "", "input folder (batch mode)")
		outputDir  = flag.String("output-dir", "", "output directory (overrides config)")
		outputName = flag.String("output-name", "", "output document name (single-file modes)")
		enhance    = flag.Bool("enhance-image", false, "enable AI image descriptions")
		parallel   = flag.Int("parallel", 0, "parallel image workers (overrides config)")
		cfgPath    = flag.String("config", "", "YAML config file")
		debug      = flag.Bool("debug", false, "enable debug logging")
		mcpMode    = flag.Bool("mcp", false, "serve the converter as an MCP tool over stdio")
	)
	flag.Parse()

	// .env is optional; environment always wins over the config file.
	_ = godotenv.Load()

	logger := newLogger(*debug)
	slog.SetDefault(logger)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(logger, "config", err)
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *parallel > 0 {
		cfg.ParallelImages = *parallel
	}
	if *enhance {
		cfg.EnhanceImages = true
	}
	if cfg.OCR.APIKey == "" {
		fatal(logger, "config", fmt.Errorf("MISTRAL_API_KEY is not set"))
	}

	svc, err := markmuse.NewService(cfg, logger)
	if err != nil {
		fatal(logger, "init", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := markmuse.RunOptions{
		OutputName: *outputName,
		Enhance:    *enhance || cfg.EnhanceImages,
		OnProgress: func(percent int, message string) {
			logger.Debug("progress", "percent", percent, "message", message)
		},
	}

	switch {
	case *mcpMode:
		if err := serveMCP(ctx, svc, logger); err != nil {
			fatal(logger, "mcp", err)
		}
	case *batch:
		if *inputDir == "" {
			fatal(logger, "usage", fmt.Errorf("batch mode needs -input-dir"))
		}
		res, err := svc.ConvertBatch(ctx, *inputDir, opts)
		if err != nil {
			fatal(logger, "batch conversion", err)
		}
		if len(res.Failed) > 0 {
			logger.Warn("some files failed", "failed", res.Failed)
			os.Exit(1)
		}
	case *file != "":
		result, err := svc.ConvertFile(ctx, *file, opts)
		if err != nil {
			fatal(logger, "conversion", err)
		}
		printResult(result)
	case *pdfURL != "":
		result, err := svc.ConvertURL(ctx, *pdfURL, opts)
		if err != nil {
			fatal(logger, "conversion", err)
		}
		printResult(result)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printResult(res *convert.ConversionResult) {
	fmt.Println(res.DocumentLocator.URL)
	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "image %s (page %d): %s: %v\n", f.ImageID, f.Page, f.Kind, f.Err)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func fatal(logger *slog.Logger, stage string, err error) {
	logger.Error(stage, "error", err)
	os.Exit(1)
}
