package convert

import (
	"encoding/base64"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/markmuse/markmuse/store"
)

// imageRef matches the Markdown image syntax the OCR emits. The constrained
// subset makes a text-pattern rewrite safe; a full Markdown parse is not
// needed as long as non-image text is left byte-for-byte unchanged.
var imageRef = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// lookupExts is the fixed extension probe order for IDs referenced without
// an extension. First match wins.
var lookupExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// ResolvePage rewrites every resolvable image reference in pageText to its
// final locator, appending the analysis block when a description exists.
// Unresolved references are left untouched — visible degradation, never an
// error. Matches are processed in one left-to-right pass, so a later match
// never sees an earlier match's replacement.
func ResolvePage(pageText string, index int, artifacts ArtifactMap, outputBaseDir string) RewrittenPage {
	text := imageRef.ReplaceAllStringFunc(pageText, func(match string) string {
		sub := imageRef.FindStringSubmatch(match)
		alt, target := sub[1], sub[2]

		rec, ok := lookupArtifact(artifacts, target)
		if !ok {
			return match
		}

		link := formatLocator(rec.Locator, outputBaseDir)
		if rec.Description != "" {
			return "![" + alt + "](" + link + ")\n\n**AI图片分析**：" + rec.Description + "\n"
		}
		return "![" + alt + "](" + link + ")"
	})
	return RewrittenPage{Index: index, Text: text}
}

// lookupArtifact resolves a reference target to a record: the trailing path
// segment is the candidate ID, tried verbatim first, then with each known
// extension appended when it carries none.
func lookupArtifact(artifacts ArtifactMap, target string) (ArtifactRecord, bool) {
	id := target
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}

	if rec, ok := artifacts[id]; ok {
		return rec, true
	}
	if !store.HasImageExt(id) {
		for _, ext := range lookupExts {
			if rec, ok := artifacts[id+ext]; ok {
				return rec, true
			}
		}
	}
	return ArtifactRecord{}, false
}

// formatLocator renders a locator as a Markdown link target: remote URLs
// verbatim, local paths relative to the document's directory with forward
// slashes for portability.
func formatLocator(loc store.Locator, outputBaseDir string) string {
	if loc.IsRemote {
		return loc.URL
	}
	rel, err := filepath.Rel(outputBaseDir, loc.URL)
	if err != nil {
		rel = loc.URL
	}
	return filepath.ToSlash(rel)
}

func base64Of(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// stripImageRefs removes image markup from page text, leaving best-effort
// prose context for the describer.
func stripImageRefs(pageText string) string {
	return strings.TrimSpace(imageRef.ReplaceAllString(pageText, ""))
}
