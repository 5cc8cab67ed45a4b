package convert

import (
	"log/slog"

	"github.com/markmuse/markmuse/describe"
	"github.com/markmuse/markmuse/store"
)

// ArtifactRecord is one successfully persisted image. Created once by the
// extraction pipeline, never mutated afterwards.
type ArtifactRecord struct {
	// Key is the sanitized, extension-normalized storage key.
	Key string
	// Locator is the stored artifact's address (path or URL).
	Locator store.Locator
	// Description is the optional AI-generated analysis text.
	Description string
}

// ArtifactMap maps image IDs (and, redundantly, ID+".png" for IDs without
// a recognized extension) to their records.
type ArtifactMap map[string]ArtifactRecord

// FailureKind classifies why an image was not persisted.
type FailureKind string

const (
	// FailureSkipped marks payloads rejected by the size heuristic —
	// placeholders, not errors.
	FailureSkipped FailureKind = "skipped"
	// FailureDecode marks malformed payloads.
	FailureDecode FailureKind = "decode"
	// FailureStore marks images whose local write failed after any remote
	// fallback.
	FailureStore FailureKind = "store"
)

// ImageFailure records one image that did not make it into the map.
type ImageFailure struct {
	ImageID string
	Page    int
	Kind    FailureKind
	Err     error
}

// RewrittenPage is a page whose image references point at final locators.
type RewrittenPage struct {
	Index int
	Text  string
}

// ConversionResult is the terminal output of a conversion.
type ConversionResult struct {
	// DocumentLocator addresses the persisted Markdown document.
	DocumentLocator store.Locator
	// ArtifactCount is the number of persisted image artifacts (aliases
	// not counted).
	ArtifactCount int
	// Failures lists images that were skipped or failed. A populated list
	// alongside a locator means decoded-but-degraded success.
	Failures []ImageFailure
}

// ProgressFunc receives coarse milestones: a 0-100 percentage and a short
// message. Invoked fire-and-forget; it must not block.
type ProgressFunc func(percent int, message string)

// Options steers a single conversion.
type Options struct {
	// DocKey names the output: images go under "<DocKey>_images/", the
	// document under "<DocKey>.md". Required.
	DocKey string
	// OutputDir is the base directory local locators are made relative to.
	OutputDir string
	// Enhance enables AI descriptions when a describer is configured.
	Enhance bool
	// Parallelism bounds the image worker pool. Default 3.
	Parallelism int
	// OnProgress, when set, receives milestone callbacks.
	OnProgress ProgressFunc
}

// Config wires a Converter's collaborators. Store is required; Describer
// may be nil (enrichment disabled).
type Config struct {
	Store     store.Store
	Describer describe.Describer
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
