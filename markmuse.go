// Package markmuse converts PDF documents to Markdown through an OCR
// service: pages are OCR'd remotely, every embedded image is extracted and
// persisted (S3-compatible store with per-image local fallback), optionally
// enriched with an AI description, and the page Markdown is rewritten to
// reference the stored artifacts.
package markmuse

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/markmuse/markmuse/config"
	"github.com/markmuse/markmuse/convert"
	"github.com/markmuse/markmuse/describe"
	"github.com/markmuse/markmuse/ocr"
	"github.com/markmuse/markmuse/store"
)

// Service wires the OCR client, artifact store and converter behind the
// conversion operations the binaries expose.
type Service struct {
	cfg    *config.Config
	ocr    *ocr.Client
	conv   *convert.Converter
	router *store.Router
	logger *slog.Logger
}

// RunOptions steers one conversion run.
type RunOptions struct {
	// OutputName overrides the derived document name (".md" stripped).
	OutputName string
	// Enhance enables AI image descriptions for this run.
	Enhance bool
	// Parallelism overrides the configured image worker count when > 0.
	Parallelism int
	// OnProgress receives coarse milestones.
	OnProgress convert.ProgressFunc
}

// NewService builds a Service from configuration. The describer is
// constructed whenever an LLM is configured, so per-run enhancement works
// without the global enhance_images switch; the S3 backend only when
// use_s3 is set.
func NewService(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ocrClient, err := ocr.NewClient(ocr.Config{
		APIKey:  cfg.OCR.APIKey,
		BaseURL: cfg.OCR.BaseURL,
		Model:   cfg.OCR.Model,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	var remote store.Store
	if cfg.UseS3 {
		s3, err := store.NewS3(cfg.S3, logger)
		if err != nil {
			return nil, err
		}
		remote = s3
	}
	router := store.NewRouter(remote, store.NewLocal(cfg.OutputDir), logger)

	var describer describe.Describer
	if cfg.EnhanceImages || llmConfigured(cfg.LLM) {
		llmCfg := cfg.LLM
		llmCfg.Logger = logger
		llm, err := describe.NewLLM(llmCfg)
		if err != nil {
			// Enrichment is optional everywhere else; a misconfigured
			// describer degrades to no descriptions instead of blocking
			// conversions.
			logger.Warn("describer unavailable, descriptions disabled", "error", err)
		} else {
			describer = llm
		}
	}

	conv, err := convert.New(convert.Config{
		Store:     router,
		Describer: describer,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &Service{cfg: cfg, ocr: ocrClient, conv: conv, router: router, logger: logger}, nil
}

// llmConfigured reports whether the LLM section carries enough to build a
// describer: an API key for OpenAI-compatible providers, or an explicit
// ollama provider (which needs none).
func llmConfigured(c describe.Config) bool {
	return c.APIKey != "" || strings.EqualFold(c.Provider, "ollama")
}

// ConvertFile converts a local PDF.
func (s *Service) ConvertFile(ctx context.Context, path string, opts RunOptions) (*convert.ConversionResult, error) {
	pre, err := ocr.Preflight(path, s.cfg.OCR.MaxPages, s.cfg.MaxFileBytes())
	if err != nil {
		return nil, err
	}
	s.logger.Info("converting local pdf", "path", path, "pages", pre.PageCount)

	resp, err := s.ocr.ProcessFile(ctx, path)
	if err != nil {
		return nil, err
	}

	docKey := opts.OutputName
	if docKey == "" {
		docKey = DocKeyFromPath(path)
	}
	return s.convert(ctx, resp, docKey, opts)
}

// ConvertURL converts a remotely hosted PDF.
func (s *Service) ConvertURL(ctx context.Context, pdfURL string, opts RunOptions) (*convert.ConversionResult, error) {
	s.logger.Info("converting remote pdf", "url", pdfURL)

	resp, err := s.ocr.ProcessURL(ctx, pdfURL)
	if err != nil {
		return nil, err
	}

	docKey := opts.OutputName
	if docKey == "" {
		docKey = DocKeyFromURL(pdfURL)
	}
	return s.convert(ctx, resp, docKey, opts)
}

// BatchResult summarises a folder conversion.
type BatchResult struct {
	Succeeded int
	Failed    []string
}

// ConvertBatch converts every PDF directly under inputDir. A file's
// failure is recorded and the batch continues; submissions are spaced a
// second apart to stay under the OCR service's rate limits.
func (s *Service) ConvertBatch(ctx context.Context, inputDir string, opts RunOptions) (*BatchResult, error) {
	files, err := ocr.ListPDFs(inputDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no pdf files in %s", inputDir)
	}
	s.logger.Info("batch conversion started", "files", len(files))

	res := &BatchResult{}
	for i, f := range files {
		fileOpts := opts
		fileOpts.OutputName = "" // derive per file
		if _, err := s.ConvertFile(ctx, f, fileOpts); err != nil {
			s.logger.Warn("batch file failed", "file", f, "error", err)
			res.Failed = append(res.Failed, filepath.Base(f))
		} else {
			res.Succeeded++
		}

		if i < len(files)-1 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}

	s.logger.Info("batch conversion finished", "succeeded", res.Succeeded, "failed", len(res.Failed))
	return res, nil
}

// StoreSource persists the original PDF next to the conversion output, so
// remote consumers can reach the source document too.
func (s *Service) StoreSource(ctx context.Context, docKey string, data []byte) (store.Locator, error) {
	return s.router.Put(ctx, data, docKey+"/"+docKey+".pdf", "application/pdf")
}

func (s *Service) convert(ctx context.Context, resp *ocr.Response, docKey string, opts RunOptions) (*convert.ConversionResult, error) {
	result, err := s.conv.Convert(ctx, resp.Pages, convert.Options{
		DocKey:      docKey,
		OutputDir:   s.cfg.OutputDir,
		Enhance:     opts.Enhance,
		Parallelism: s.parallelism(opts),
		OnProgress:  opts.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversion complete",
		"document", result.DocumentLocator.URL,
		"artifacts", result.ArtifactCount,
		"failures", len(result.Failures))
	return result, nil
}

// parallelism resolves the image worker count: a per-run override wins
// over the configured default.
func (s *Service) parallelism(opts RunOptions) int {
	if opts.Parallelism > 0 {
		return opts.Parallelism
	}
	return s.cfg.ParallelImages
}

// DocKeyFromPath derives the output name from a local file path.
func DocKeyFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DocKeyFromURL derives the output name from a PDF URL, falling back to a
// fixed name when the URL has no usable file segment.
func DocKeyFromURL(pdfURL string) string {
	name := ""
	if u, err := url.Parse(pdfURL); err == nil {
		name = filepath.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" || !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "pdf_from_url"
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
