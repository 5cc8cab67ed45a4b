package convert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/markmuse/markmuse/ocr"
)

func TestConvertEndToEnd(t *testing.T) {
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	pages := []ocr.Page{
		{Index: 0, Markdown: "# Report\n\n![cover](cover.png)", Images: []ocr.Image{validImage("cover.png", 200)}},
		{Index: 1, Markdown: "Totals: ![chart](chart.jpeg)", Images: []ocr.Image{validImage("chart.jpeg", 200)}},
	}

	res, err := c.Convert(context.Background(), pages, Options{DocKey: "report", OutputDir: "out"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ArtifactCount != 2 {
		t.Fatalf("artifact count = %d, want 2", res.ArtifactCount)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}

	doc := string(st.objects["report.md"])
	if !strings.Contains(doc, "![cover](report_images/cover.png)") {
		t.Fatalf("cover link not rewritten: %q", doc)
	}
	if !strings.Contains(doc, "![chart](report_images/chart.jpeg)") {
		t.Fatalf("chart link not rewritten: %q", doc)
	}
	// Pages joined with a blank line, in index order.
	if !strings.Contains(doc, ")\n\nTotals:") {
		t.Fatalf("pages not joined in order: %q", doc)
	}
}

func TestConvertPageOrder(t *testing.T) {
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	pages := []ocr.Page{
		{Index: 2, Markdown: "third"},
		{Index: 0, Markdown: "first"},
		{Index: 1, Markdown: "second"},
	}

	if _, err := c.Convert(context.Background(), pages, Options{DocKey: "doc", OutputDir: "out"}); err != nil {
		t.Fatal(err)
	}
	if got := string(st.objects["doc.md"]); got != "first\n\nsecond\n\nthird" {
		t.Fatalf("got %q", got)
	}
}

func TestConvertKeepsExplicitZeroIndex(t *testing.T) {
	// A page carrying a genuine Index 0 must keep it even when it is not
	// first in the slice.
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	pages := []ocr.Page{
		{Index: 1, Markdown: "second"},
		{Index: 0, Markdown: "first"},
	}

	if _, err := c.Convert(context.Background(), pages, Options{DocKey: "doc", OutputDir: "out"}); err != nil {
		t.Fatal(err)
	}
	if got := string(st.objects["doc.md"]); got != "first\n\nsecond" {
		t.Fatalf("got %q", got)
	}
}

func TestConvertBackfillsOmittedIndices(t *testing.T) {
	// All-zero indices mean the upstream omitted them; slice order is then
	// the page order.
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	pages := []ocr.Page{
		{Markdown: "one"},
		{Markdown: "two"},
		{Markdown: "three"},
	}

	if _, err := c.Convert(context.Background(), pages, Options{DocKey: "doc", OutputDir: "out"}); err != nil {
		t.Fatal(err)
	}
	if got := string(st.objects["doc.md"]); got != "one\n\ntwo\n\nthree" {
		t.Fatalf("got %q", got)
	}
}

func TestConvertReportsFailuresAlongsideSuccess(t *testing.T) {
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	pages := []ocr.Page{{
		Markdown: "![ok](good.png) and ![lost](broken.png)",
		Images: []ocr.Image{
			validImage("good.png", 200),
			{ID: "broken.png", Base64: "%%%%"},
		},
	}}

	res, err := c.Convert(context.Background(), pages, Options{DocKey: "doc", OutputDir: "out"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %v, want the broken image reported", res.Failures)
	}

	// The failed image's reference is left untouched.
	doc := string(st.objects["doc.md"])
	if !strings.Contains(doc, "![ok](doc_images/good.png)") {
		t.Fatalf("good reference not rewritten: %q", doc)
	}
	if !strings.Contains(doc, "![lost](broken.png)") {
		t.Fatalf("broken reference was modified: %q", doc)
	}
}

func TestConvertAssemblyFailureIsFatal(t *testing.T) {
	st := newMemStore()
	st.failOn = func(key string) error {
		if strings.HasSuffix(key, ".md") {
			return errors.New("disk full")
		}
		return nil
	}
	c := newTestConverter(t, Config{Store: st})

	pages := []ocr.Page{{Markdown: "text"}}
	if _, err := c.Convert(context.Background(), pages, Options{DocKey: "doc", OutputDir: "out"}); err == nil {
		t.Fatal("expected assembly failure to abort the conversion")
	}
}

func TestConvertRequiresDocKey(t *testing.T) {
	c := newTestConverter(t, Config{Store: newMemStore()})
	if _, err := c.Convert(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected an error without a document key")
	}
}

func TestConvertProgressMilestones(t *testing.T) {
	st := newMemStore()
	c := newTestConverter(t, Config{Store: st})

	var mu sync.Mutex
	var percents []int
	pages := []ocr.Page{{Images: []ocr.Image{validImage("a.png", 200), validImage("b.png", 200)}}}
	_, err := c.Convert(context.Background(), pages, Options{
		DocKey:    "doc",
		OutputDir: "out",
		OnProgress: func(percent int, _ string) {
			mu.Lock()
			percents = append(percents, percent)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(percents) == 0 || percents[0] != 0 {
		t.Fatalf("missing batch-start milestone: %v", percents)
	}
	if percents[len(percents)-1] != 100 {
		t.Fatalf("missing completion milestone: %v", percents)
	}
}

func TestCountArtifactsIgnoresAliases(t *testing.T) {
	m := ArtifactMap{
		"a":     {Key: "a.png"},
		"a.png": {Key: "a.png"},
		"b.jpg": {Key: "b.jpg"},
	}
	if n := countArtifacts(m); n != 2 {
		t.Fatalf("got %d, want 2", n)
	}
}
