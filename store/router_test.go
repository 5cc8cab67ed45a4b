package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

type stubStore struct {
	puts int
	err  error
	loc  Locator
}

func (s *stubStore) Put(_ context.Context, _ []byte, key, _ string) (Locator, error) {
	s.puts++
	if s.err != nil {
		return Locator{}, s.err
	}
	if s.loc.URL != "" {
		return s.loc, nil
	}
	return Locator{URL: key, IsRemote: false}, nil
}

func TestRouterPrefersRemote(t *testing.T) {
	remote := &stubStore{loc: Locator{URL: "https://cdn.test/a.png", IsRemote: true}}
	local := &stubStore{}
	r := NewRouter(remote, local, slog.Default())

	loc, err := r.Put(context.Background(), []byte("x"), "a.png", "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if !loc.IsRemote {
		t.Fatal("expected the remote locator")
	}
	if local.puts != 0 {
		t.Fatal("local store was written despite remote success")
	}
}

func TestRouterFallsBackPerPut(t *testing.T) {
	remote := &stubStore{err: fmt.Errorf("%w: connection refused", ErrRemoteUnavailable)}
	local := &stubStore{}
	r := NewRouter(remote, local, slog.Default())
	ctx := context.Background()

	for i := range 3 {
		loc, err := r.Put(ctx, []byte("x"), fmt.Sprintf("img%d.png", i), "image/png")
		if err != nil {
			t.Fatal(err)
		}
		if loc.IsRemote {
			t.Fatal("fallback locator flagged remote")
		}
	}
	// The remote is retried on every Put, not disabled for the run.
	if remote.puts != 3 {
		t.Fatalf("remote attempts = %d, want 3", remote.puts)
	}
	if local.puts != 3 {
		t.Fatalf("local writes = %d, want 3", local.puts)
	}
}

func TestRouterLocalOnly(t *testing.T) {
	local := &stubStore{}
	r := NewRouter(nil, local, nil)

	if _, err := r.Put(context.Background(), []byte("x"), "a.png", "image/png"); err != nil {
		t.Fatal(err)
	}
	if local.puts != 1 {
		t.Fatal("local store not used in local-only mode")
	}
}

func TestRouterNoFallbackOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	remote := &stubStore{err: errors.New("context canceled")}
	local := &stubStore{}
	r := NewRouter(remote, local, slog.Default())

	if _, err := r.Put(ctx, []byte("x"), "a.png", "image/png"); err == nil {
		t.Fatal("expected the remote error to surface")
	}
	if local.puts != 0 {
		t.Fatal("cancelled Put must not fall back to local")
	}
}
