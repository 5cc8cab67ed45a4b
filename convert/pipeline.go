package convert

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/markmuse/markmuse/describe"
	"github.com/markmuse/markmuse/ocr"
	"github.com/markmuse/markmuse/store"
)

const defaultParallelism = 3

// imageTask is one (page, image) pair flattened out of the document.
// Processing order is irrelevant; the originating page is retained for
// context lookups and failure reports.
type imageTask struct {
	pageIdx  int
	imgIdx   int
	img      ocr.Image
	pageText string
}

// extractImages processes every embedded image through decode → persist →
// optional describe, under a bounded worker pool. A single image's failure
// never aborts the batch; failures are collected and reported.
//
// The returned map is complete when err is nil. On context cancellation a
// partial map is returned alongside the context error: finished records
// are valid, unfinished images are simply absent.
func (c *Converter) extractImages(ctx context.Context, pages []ocr.Page, opts Options) (ArtifactMap, []ImageFailure, error) {
	var tasks []imageTask
	for pi, page := range pages {
		for ii, img := range page.Images {
			tasks = append(tasks, imageTask{pageIdx: pi, imgIdx: ii, img: img, pageText: page.Markdown})
		}
	}

	artifacts := make(ArtifactMap)
	var failures []ImageFailure
	if len(tasks) == 0 {
		c.cfg.Logger.Info("no embedded images found")
		return artifacts, failures, nil
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	report(opts.OnProgress, 0, "image extraction started")

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, task := range tasks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			id := ocr.ImageID(task.img, task.pageIdx, task.imgIdx)
			rec, failure := c.processImage(gctx, id, task, opts)

			mu.Lock()
			if failure != nil {
				failures = append(failures, *failure)
			} else {
				artifacts[id] = rec
				// Register the extensioned alias so reference lookups
				// succeed whether or not the page text carries one.
				if !store.HasImageExt(id) {
					artifacts[id+".png"] = rec
				}
			}
			done++
			pct := done * 100 / len(tasks)
			mu.Unlock()

			report(opts.OnProgress, pct, "image processed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return artifacts, failures, err
	}

	c.cfg.Logger.Info("image extraction finished",
		"images", len(tasks), "stored", len(tasks)-len(failures), "failed", len(failures))
	return artifacts, failures, nil
}

// processImage runs one image through the decode → store → describe chain.
// Exactly one of the results is meaningful: a record on success, a failure
// otherwise.
func (c *Converter) processImage(ctx context.Context, id string, task imageTask, opts Options) (ArtifactRecord, *ImageFailure) {
	page := task.pageIdx + 1

	decoded, err := DecodePayload(task.img.Base64)
	if err != nil {
		kind := FailureDecode
		if errors.Is(err, ErrTooSmall) {
			kind = FailureSkipped
			c.cfg.Logger.Debug("image skipped", "image", id, "page", page, "reason", err)
		} else {
			c.cfg.Logger.Warn("image payload rejected", "image", id, "page", page, "error", err)
		}
		return ArtifactRecord{}, &ImageFailure{ImageID: id, Page: page, Kind: kind, Err: err}
	}

	safe := store.SanitizeFilename(id)
	key := opts.DocKey + "_images/" + safe
	loc, err := c.cfg.Store.Put(ctx, decoded.Bytes, key, decoded.ContentType)
	if err != nil {
		c.cfg.Logger.Warn("image store failed", "image", id, "page", page, "error", err)
		return ArtifactRecord{}, &ImageFailure{ImageID: id, Page: page, Kind: FailureStore, Err: err}
	}

	rec := ArtifactRecord{Key: safe, Locator: loc}
	if opts.Enhance && c.cfg.Describer != nil {
		rec.Description = c.describeImage(ctx, id, task, decoded, loc)
	}
	return rec, nil
}

// describeImage asks the describer for an analysis. Never fatal: on any
// failure the image simply carries no description.
func (c *Converter) describeImage(ctx context.Context, id string, task imageTask, decoded Decoded, loc store.Locator) string {
	prompt := describe.DefaultPrompt
	if ctxText := stripImageRefs(task.pageText); ctxText != "" {
		prompt += "\n\n图片所在页面的上下文：\n" + ctxText
	}

	var text string
	var err error
	if loc.IsRemote {
		// The artifact already has a public URL; no need to re-send bytes.
		text, err = c.cfg.Describer.DescribeURL(ctx, loc.URL, prompt)
	} else {
		text, err = c.cfg.Describer.DescribeBytes(ctx, base64Of(decoded.Bytes), id, prompt)
	}
	if err != nil {
		c.cfg.Logger.Warn("image description failed", "image", id, "error", err)
		return ""
	}
	return text
}

func report(fn ProgressFunc, percent int, message string) {
	if fn != nil {
		fn(percent, message)
	}
}
