package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local writes artifacts to a directory, creating it on demand. Locators
// are paths joined under Dir; callers relativise them for Markdown links.
type Local struct {
	Dir string
}

// NewLocal creates a local store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

// Put writes data to Dir/key. Parent directories are created as needed so
// keys like "report_images/fig1.png" work without preparation.
func (l *Local) Put(_ context.Context, data []byte, key, _ string) (Locator, error) {
	path := filepath.Join(l.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Locator{}, fmt.Errorf("store: mkdir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Locator{}, fmt.Errorf("store: write %s: %w", key, err)
	}
	return Locator{URL: path, IsRemote: false}, nil
}
