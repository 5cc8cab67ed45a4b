// Package convert turns OCR page output into a single Markdown document:
// every embedded image is decoded, persisted through the store router and
// optionally described, then the pages' image references are rewritten to
// the stored artifacts and the pages assembled in order.
package convert

import (
	"context"
	"fmt"

	"github.com/markmuse/markmuse/ocr"
)

// Converter runs conversions. Collaborators are injected once through
// Config; a Converter is safe for concurrent use by independent runs.
type Converter struct {
	cfg Config
}

// New creates a Converter. Config.Store is required.
func New(cfg Config) (*Converter, error) {
	cfg.defaults()
	if cfg.Store == nil {
		return nil, fmt.Errorf("convert: a store is required")
	}
	return &Converter{cfg: cfg}, nil
}

// Convert runs the full pipeline over the OCR pages.
//
// Image-level failures degrade the output and are reported in the result;
// only assembly failure (or cancellation) returns an error. Reference
// resolution starts strictly after every image worker has finished, so the
// artifact map is never read while written.
func (c *Converter) Convert(ctx context.Context, pages []ocr.Page, opts Options) (*ConversionResult, error) {
	if opts.DocKey == "" {
		return nil, fmt.Errorf("convert: options need a document key")
	}

	artifacts, failures, err := c.extractImages(ctx, pages, opts)
	if err != nil {
		return nil, fmt.Errorf("convert: extraction interrupted: %w", err)
	}

	rewritten := make([]RewrittenPage, 0, len(pages))
	backfill := indicesOmitted(pages)
	for i, page := range pages {
		idx := page.Index
		if backfill {
			idx = i
		}
		rewritten = append(rewritten, ResolvePage(page.Markdown, idx, artifacts, opts.OutputDir))
	}

	docLoc, err := c.assemble(ctx, rewritten, opts)
	if err != nil {
		return nil, err
	}
	report(opts.OnProgress, 100, "assembly complete")

	return &ConversionResult{
		DocumentLocator: docLoc,
		ArtifactCount:   countArtifacts(artifacts),
		Failures:        failures,
	}, nil
}

// indicesOmitted reports whether the upstream left page indices out
// entirely: every page claims index zero. Only then is slice position the
// ordering of record — a genuine Index 0 page must never be renumbered.
func indicesOmitted(pages []ocr.Page) bool {
	if len(pages) < 2 {
		return false
	}
	for _, p := range pages {
		if p.Index != 0 {
			return false
		}
	}
	return true
}

// countArtifacts counts distinct records, not map entries: IDs without an
// extension are inserted twice (alias under id+".png").
func countArtifacts(m ArtifactMap) int {
	seen := make(map[string]struct{}, len(m))
	for _, rec := range m {
		seen[rec.Key] = struct{}{}
	}
	return len(seen)
}
