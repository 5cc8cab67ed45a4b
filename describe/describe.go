// Package describe attaches natural-language descriptions to extracted
// images using a vision-capable LLM. Descriptions are best-effort
// enrichment: every failure here is non-fatal to the conversion.
package describe

import "context"

// DefaultPrompt matches the upstream analysis prompt: describe the image
// with attention to embedded text, data and key information, in Chinese.
const DefaultPrompt = "详细描述此图片内容，关注图片中的文字、数据和关键信息，使用中文回复。"

// Describer produces a textual description of an image, addressed either
// by a public URL or by its base64-encoded bytes. Both forms may stream
// internally; only the final concatenated text is returned.
type Describer interface {
	DescribeURL(ctx context.Context, url, prompt string) (string, error)
	DescribeBytes(ctx context.Context, imageBase64, imageID, prompt string) (string, error)
}
