package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	defaultBaseURL = "https://api.mistral.ai"
	defaultModel   = "mistral-ocr-latest"
)

// Config configures the OCR client.
type Config struct {
	// APIKey authenticates against the OCR endpoint. Required.
	APIKey string
	// BaseURL overrides the API endpoint (default: https://api.mistral.ai).
	BaseURL string
	// Model is the OCR model name (default: mistral-ocr-latest).
	Model string
	// Timeout bounds a single OCR call (default: 5m — large documents are slow).
	Timeout time.Duration
	// Logger for debug/error messages.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client calls the OCR endpoint and returns typed pages.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates an OCR client. Returns an error when no API key is set.
func NewClient(cfg Config) (*Client, error) {
	cfg.defaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ocr: api key is required")
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// documentRef is the wire form of the document argument.
type documentRef struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrRequest struct {
	Model              string      `json:"model"`
	Document           documentRef `json:"document"`
	IncludeImageBase64 bool        `json:"include_image_base64"`
}

// ProcessURL runs OCR on a remotely hosted document.
func (c *Client) ProcessURL(ctx context.Context, url string) (*Response, error) {
	return c.process(ctx, url)
}

// ProcessFile reads a local PDF and submits it inline as a base64 data URI.
func (c *Client) ProcessFile(ctx context.Context, path string) (*Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ocr: read %s: %w", path, err)
	}
	uri := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data)
	return c.process(ctx, uri)
}

func (c *Client) process(ctx context.Context, documentURL string) (*Response, error) {
	body, err := json.Marshal(ocrRequest{
		Model: c.cfg.Model,
		Document: documentRef{
			Type:        "document_url",
			DocumentURL: documentURL,
		},
		IncludeImageBase64: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ocr: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ocr: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.cfg.Logger.Debug("ocr: submitting document", "model", c.cfg.Model)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, fmt.Errorf("ocr: authentication rejected (%d): %s", resp.StatusCode, msg)
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("ocr: rate limited (%d): %s", resp.StatusCode, msg)
		default:
			return nil, fmt.Errorf("ocr: status %d: %s", resp.StatusCode, msg)
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ocr: decode response: %w", err)
	}

	// Some responses omit page indices; backfill by position so assembly
	// ordering stays deterministic.
	for i := range out.Pages {
		if out.Pages[i].Index == 0 && i > 0 {
			out.Pages[i].Index = i
		}
	}

	c.cfg.Logger.Info("ocr: document processed", "pages", len(out.Pages), "images", out.ImageCount())
	return &out, nil
}
