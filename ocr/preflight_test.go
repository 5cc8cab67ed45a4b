package ocr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreflightMissingFile(t *testing.T) {
	if _, err := Preflight(filepath.Join(t.TempDir(), "nope.pdf"), 0, 0); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestPreflightOversized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.pdf")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Preflight(path, 0, 1024)
	if err == nil || !strings.Contains(err.Error(), "max 1024") {
		t.Fatalf("err = %v", err)
	}
}

func TestPreflightRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Preflight(path, 0, 0); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestListPDFs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt", "c.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ListPDFs(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "c.pdf"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
