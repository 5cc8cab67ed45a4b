// Package store persists conversion artifacts (images and the final
// Markdown document) to a local directory or an S3-compatible object store,
// with a per-artifact fallback from remote to local.
package store

import (
	"context"
	"errors"
	"regexp"
)

// Locator is a Markdown-usable reference to a persisted artifact: an
// absolute URL when remote, a filesystem path when local.
type Locator struct {
	URL      string
	IsRemote bool
}

// Store persists bytes under a key and returns a locator for them.
// Implementations must overwrite existing objects with the same key.
type Store interface {
	Put(ctx context.Context, data []byte, key, contentType string) (Locator, error)
}

// ErrRemoteUnavailable wraps any remote backend failure. The router treats
// it as terminal for the attempt and falls back to local.
var ErrRemoteUnavailable = errors.New("store: remote unavailable")

var (
	unsafeChars = regexp.MustCompile(`[\\/*?:'"<>|]`)
	// imageExt matches the extensions the upstream OCR is known to emit.
	imageExt = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|bmp|tiff)$`)
)

// SanitizeFilename makes an image ID safe to use as a file name or object
// key: characters that are unsafe on common filesystems are replaced with
// underscores, and a ".png" extension is appended when no recognized image
// extension is present.
func SanitizeFilename(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	if !imageExt.MatchString(safe) {
		safe += ".png"
	}
	return safe
}

// HasImageExt reports whether name ends in a recognized image extension.
func HasImageExt(name string) bool {
	return imageExt.MatchString(name)
}
