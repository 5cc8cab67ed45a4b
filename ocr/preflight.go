package ocr

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PreflightResult summarises a local PDF before it is submitted for OCR.
type PreflightResult struct {
	Path      string
	PageCount int
	SizeBytes int64
}

// Preflight validates a local PDF and returns its page count. It catches
// corrupt or oversized documents before an OCR call is paid for.
// maxPages and maxBytes of 0 disable the respective limit.
func Preflight(path string, maxPages int, maxBytes int64) (*PreflightResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("preflight: stat %s: %w", path, err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, fmt.Errorf("preflight: %s is %d bytes (max %d)", path, info.Size(), maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("preflight: open %s: %w", path, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("preflight: invalid pdf %s: %w", path, err)
	}
	if maxPages > 0 && pdfCtx.PageCount > maxPages {
		return nil, fmt.Errorf("preflight: %s has %d pages (max %d)", path, pdfCtx.PageCount, maxPages)
	}

	return &PreflightResult{
		Path:      path,
		PageCount: pdfCtx.PageCount,
		SizeBytes: info.Size(),
	}, nil
}

// ListPDFs returns the PDF files directly under dir, sorted by name.
// Used by batch conversion.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list pdfs: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
