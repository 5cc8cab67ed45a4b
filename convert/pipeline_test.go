package convert

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/markmuse/markmuse/ocr"
	"github.com/markmuse/markmuse/store"
)

// memStore records every Put in memory. failOn returns an error for keys
// it wants to reject.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	remote  bool
	failOn  func(key string) error
	puts    int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(_ context.Context, data []byte, key, _ string) (store.Locator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failOn != nil {
		if err := m.failOn(key); err != nil {
			return store.Locator{}, err
		}
	}
	m.objects[key] = data
	if m.remote {
		return store.Locator{URL: "https://cdn.test/" + key, IsRemote: true}, nil
	}
	return store.Locator{URL: "out/" + key, IsRemote: false}, nil
}

// fakeDescriber returns a fixed description and records how it was called.
type fakeDescriber struct {
	mu       sync.Mutex
	urls     []string
	byBytes  []string
	text     string
	err      error
}

func (f *fakeDescriber) DescribeURL(_ context.Context, url, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return f.text, f.err
}

func (f *fakeDescriber) DescribeBytes(_ context.Context, _, id, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byBytes = append(f.byBytes, id)
	return f.text, f.err
}

func validImage(id string, n int) ocr.Image {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return ocr.Image{ID: id, Base64: base64.StdEncoding.EncodeToString(data)}
}

func newTestConverter(t *testing.T, cfg Config) *Converter {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestExtractImagesConcurrent(t *testing.T) {
	// 50 images across 5 pages at parallelism 5: every image must land in
	// the map exactly once, no duplicates, no omissions.
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	var pages []ocr.Page
	for p := range 5 {
		page := ocr.Page{Index: p}
		for i := range 10 {
			page.Images = append(page.Images, validImage(fmt.Sprintf("img-p%d-%d.png", p, i), 200))
		}
		pages = append(pages, page)
	}

	artifacts, failures, err := c.extractImages(context.Background(), pages, Options{
		DocKey: "doc", Parallelism: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(artifacts) != 50 {
		t.Fatalf("got %d map entries, want 50", len(artifacts))
	}
	if st.puts != 50 {
		t.Fatalf("got %d puts, want 50", st.puts)
	}
	for p := range 5 {
		for i := range 10 {
			id := fmt.Sprintf("img-p%d-%d.png", p, i)
			if _, ok := artifacts[id]; !ok {
				t.Fatalf("missing artifact %s", id)
			}
		}
	}
}

func TestExtractImagesAlias(t *testing.T) {
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	pages := []ocr.Page{{Images: []ocr.Image{validImage("figure-1", 200)}}}
	artifacts, _, err := c.extractImages(context.Background(), pages, Options{DocKey: "doc"})
	if err != nil {
		t.Fatal(err)
	}

	rec, ok := artifacts["figure-1"]
	if !ok {
		t.Fatal("missing primary entry")
	}
	alias, ok := artifacts["figure-1.png"]
	if !ok {
		t.Fatal("missing .png alias for extensionless id")
	}
	if alias.Key != rec.Key {
		t.Fatal("alias points at a different record")
	}
	if rec.Key != "figure-1.png" {
		t.Fatalf("key = %q, want sanitized figure-1.png", rec.Key)
	}
}

func TestExtractImagesFailureIsolation(t *testing.T) {
	st := newMemStore()
	st.failOn = func(key string) error {
		if strings.Contains(key, "bad") {
			return errors.New("disk full")
		}
		return nil
	}
	c := newTestConverter(t, Config{Store: st})

	pages := []ocr.Page{{Images: []ocr.Image{
		validImage("good.png", 200),
		validImage("bad.png", 200),
		{ID: "tiny.png", Base64: base64.StdEncoding.EncodeToString([]byte("short"))},
		{ID: "broken.png", Base64: "%%%%"},
	}}}

	artifacts, failures, err := c.extractImages(context.Background(), pages, Options{DocKey: "doc"})
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("got %d artifacts, want only good.png", len(artifacts))
	}
	if len(failures) != 3 {
		t.Fatalf("got %d failures, want 3", len(failures))
	}

	kinds := map[string]FailureKind{}
	for _, f := range failures {
		kinds[f.ImageID] = f.Kind
	}
	if kinds["bad.png"] != FailureStore {
		t.Fatalf("bad.png kind = %q", kinds["bad.png"])
	}
	if kinds["tiny.png"] != FailureSkipped {
		t.Fatalf("tiny.png kind = %q", kinds["tiny.png"])
	}
	if kinds["broken.png"] != FailureDecode {
		t.Fatalf("broken.png kind = %q", kinds["broken.png"])
	}
}

func TestExtractImagesDefaultID(t *testing.T) {
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	pages := []ocr.Page{{}, {Images: []ocr.Image{{Base64: validImage("", 200).Base64}}}}
	artifacts, _, err := c.extractImages(context.Background(), pages, Options{DocKey: "doc"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := artifacts["img-p2-1.png"]; !ok {
		t.Fatalf("expected synthetic id img-p2-1.png, got %v", keysOf(artifacts))
	}
}

func TestExtractImagesDescriptions(t *testing.T) {
	st := newMemStore()
	st.remote = true
	desc := &fakeDescriber{text: "a bar chart"}
	c := newTestConverter(t, Config{Store: st, Describer: desc})

	pages := []ocr.Page{{
		Markdown: "See ![f](fig.png) for totals.",
		Images:   []ocr.Image{validImage("fig.png", 200)},
	}}
	artifacts, _, err := c.extractImages(context.Background(), pages, Options{DocKey: "doc", Enhance: true})
	if err != nil {
		t.Fatal(err)
	}
	if artifacts["fig.png"].Description != "a bar chart" {
		t.Fatalf("description not attached: %+v", artifacts["fig.png"])
	}
	// Remote artifact: described by URL, bytes not re-sent.
	if len(desc.urls) != 1 || len(desc.byBytes) != 0 {
		t.Fatalf("urls=%v bytes=%v, want exactly one URL call", desc.urls, desc.byBytes)
	}
}

func TestExtractImagesDescriberFailureNonFatal(t *testing.T) {
	st := newMemStore()
	desc := &fakeDescriber{err: errors.New("model overloaded")}
	c := newTestConverter(t, Config{Store: st, Describer: desc})

	pages := []ocr.Page{{Images: []ocr.Image{validImage("fig.png", 200)}}}
	artifacts, failures, err := c.extractImages(context.Background(), pages, Options{DocKey: "doc", Enhance: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 0 {
		t.Fatalf("describer failure must not fail the image: %v", failures)
	}
	if artifacts["fig.png"].Description != "" {
		t.Fatal("expected absent description")
	}
}

func TestExtractImagesCancellation(t *testing.T) {
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages := []ocr.Page{{Images: []ocr.Image{validImage("a.png", 200)}}}
	_, _, err := c.extractImages(ctx, pages, Options{DocKey: "doc"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func keysOf(m ArtifactMap) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
