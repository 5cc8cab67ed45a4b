package describe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Config configures the LLM describer.
type Config struct {
	// Provider selects the backend: "openai" (any OpenAI-compatible API)
	// or "ollama".
	Provider string `yaml:"provider"`
	// Model is the vision model name (e.g. gpt-4o, llava).
	Model string `yaml:"model"`
	// APIKey authenticates OpenAI-compatible providers.
	APIKey string `yaml:"api_key"`
	// BaseURL points at a compatible endpoint or an Ollama server.
	BaseURL string `yaml:"base_url"`
	// MaxTokens caps the description length. 0 leaves the provider default.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature for generation. Low values keep descriptions factual.
	Temperature float64 `yaml:"temperature"`
	// Logger for per-image diagnostics.
	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "gpt-4o"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// LLM is a Describer backed by a langchaingo vision model.
type LLM struct {
	model  llms.Model
	cfg    Config
	logger *slog.Logger
}

// NewLLM builds the configured provider's model.
func NewLLM(cfg Config) (*LLM, error) {
	cfg.defaults()

	var model llms.Model
	var err error
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("describe: openai provider needs an api key")
		}
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("describe: unsupported provider %q (use openai or ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("describe: init %s model: %w", cfg.Provider, err)
	}

	cfg.Logger.Info("image describer initialized", "provider", cfg.Provider, "model", cfg.Model)
	return &LLM{model: model, cfg: cfg, logger: cfg.Logger}, nil
}

// NewWithModel wraps an existing llms.Model. Used by tests and callers that
// construct their own client.
func NewWithModel(model llms.Model, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{model: model, cfg: Config{Temperature: 0.1}, logger: logger}
}

// DescribeURL asks the model about an image addressed by public URL.
// Preferred for remote artifacts: the bytes are not re-sent.
func (l *LLM) DescribeURL(ctx context.Context, url, prompt string) (string, error) {
	return l.generate(ctx, url, llms.ImageURLPart(url), prompt)
}

// DescribeBytes asks the model about inline image data. The base64 payload
// is sent as a JPEG data URI, matching the upstream convention.
func (l *LLM) DescribeBytes(ctx context.Context, imageBase64, imageID, prompt string) (string, error) {
	part := llms.ImageURLPart("data:image/jpeg;base64," + imageBase64)
	return l.generate(ctx, imageID, part, prompt)
}

func (l *LLM) generate(ctx context.Context, ref string, imagePart llms.ContentPart, prompt string) (string, error) {
	if prompt == "" {
		prompt = DefaultPrompt
	}

	opts := []llms.CallOption{llms.WithTemperature(l.cfg.Temperature)}
	if l.cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(l.cfg.MaxTokens))
	}

	resp, err := l.model.GenerateContent(ctx, []llms.MessageContent{{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(prompt), imagePart},
	}}, opts...)
	if err != nil {
		return "", fmt.Errorf("describe %s: %w", ref, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("describe %s: empty response", ref)
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	l.logger.Debug("image described", "image", ref, "chars", len(text))
	return text, nil
}
