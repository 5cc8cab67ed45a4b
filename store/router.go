package store

import (
	"context"
	"log/slog"
)

// Router tries the remote store first and falls back to the local store on
// any failure. The fallback is scoped to a single Put: one artifact's
// remote failure never forces the rest of the run into local mode.
//
// A nil Remote disables remote mode entirely and every Put goes local.
type Router struct {
	Remote Store
	Local  Store
	Logger *slog.Logger
}

// NewRouter composes the fallback policy. local must be non-nil; remote may
// be nil to run in local-only mode.
func NewRouter(remote, local Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{Remote: remote, Local: local, Logger: logger}
}

// Put persists data, preferring the remote backend. Context cancellation is
// not retried locally: the caller gave up, the artifact did not fail.
func (r *Router) Put(ctx context.Context, data []byte, key, contentType string) (Locator, error) {
	if r.Remote != nil {
		loc, err := r.Remote.Put(ctx, data, key, contentType)
		if err == nil {
			return loc, nil
		}
		if ctx.Err() != nil {
			return Locator{}, err
		}
		r.Logger.WarnContext(ctx, "remote store failed, falling back to local",
			"key", key, "error", err)
	}
	return r.Local.Put(ctx, data, key, contentType)
}
