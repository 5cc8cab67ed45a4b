package taskq

import (
	"encoding/json"
	"fmt"
)

// KindConvertPDF is the task kind for PDF → Markdown conversions.
const KindConvertPDF = "convert_pdf"

// ConvertPayload is the payload of a KindConvertPDF task. Exactly one of
// URL and FileBase64 must be set.
type ConvertPayload struct {
	// URL of a remotely hosted PDF.
	URL string `json:"url,omitempty"`
	// FileBase64 is an inline PDF, base64-encoded.
	FileBase64 string `json:"file_base64,omitempty"`
	// Filename names the output document (extension stripped); derived
	// from URL or upload name when empty.
	Filename string `json:"filename,omitempty"`
	// Enhance requests AI image descriptions.
	Enhance bool `json:"enhance,omitempty"`
	// Parallel overrides the configured image parallelism when > 0.
	Parallel int `json:"parallel,omitempty"`
}

// Validate checks the payload's input invariant.
func (p *ConvertPayload) Validate() error {
	if (p.URL == "") == (p.FileBase64 == "") {
		return fmt.Errorf("exactly one of url and file_base64 must be set")
	}
	return nil
}

// EncodeConvertPayload marshals a payload for Enqueue.
func EncodeConvertPayload(p ConvertPayload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// DecodeConvertPayload unmarshals a claimed task's payload.
func DecodeConvertPayload(data []byte) (ConvertPayload, error) {
	var p ConvertPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("taskq: decode convert payload: %w", err)
	}
	return p, p.Validate()
}
