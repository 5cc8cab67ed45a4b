// Package ocr is the boundary to the OCR collaborator. It defines the typed
// page schema consumed by the conversion pipeline and a client for the
// Mistral OCR endpoint that produces it.
package ocr

import "fmt"

// Image is an inline image embedded in an OCR page. Base64 may carry a
// data-URI prefix and may arrive with broken padding; the conversion
// pipeline is responsible for repair.
type Image struct {
	ID     string `json:"id"`
	Base64 string `json:"image_base64"`
}

// Page is one page of OCR output: vendor Markdown plus its embedded images.
type Page struct {
	Index    int     `json:"index"`
	Markdown string  `json:"markdown"`
	Images   []Image `json:"images"`
}

// Response is the full OCR result for one document.
type Response struct {
	Pages []Page `json:"pages"`
}

// ImageID returns the image's OCR-assigned ID, or a synthetic
// "img-p{page}-{n}.png" when the upstream left it empty. Page and image
// ordinals are 1-based, matching the upstream convention.
func ImageID(img Image, pageIdx, imgIdx int) string {
	if img.ID != "" {
		return img.ID
	}
	return fmt.Sprintf("img-p%d-%d.png", pageIdx+1, imgIdx+1)
}

// ImageCount returns the total number of embedded images across all pages.
func (r *Response) ImageCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Images)
	}
	return n
}
