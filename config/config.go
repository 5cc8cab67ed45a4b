// Package config loads MarkMuse configuration from an optional YAML file
// with environment variables layered on top. The environment names mirror
// the service's deployment convention (MISTRAL_API_KEY, S3_*, OPENAI_*).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/markmuse/markmuse/describe"
	"github.com/markmuse/markmuse/store"
)

// OCR configures the OCR collaborator.
type OCR struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxPages  int    `yaml:"max_pages"` // preflight limit, 0 = unlimited
	MaxFileMB int    `yaml:"max_file_mb"`
}

// Tasks configures the queue/API side.
type Tasks struct {
	Listen        string `yaml:"listen"`
	DBPath        string `yaml:"db_path"`
	VisibilitySec int    `yaml:"visibility_sec"`
	MaxAttempts   int    `yaml:"max_attempts"`
}

// Config is the full application configuration.
type Config struct {
	OCR            OCR             `yaml:"ocr"`
	S3             store.S3Config  `yaml:"s3"`
	UseS3          bool            `yaml:"use_s3"`
	LLM            describe.Config `yaml:"llm"`
	EnhanceImages  bool            `yaml:"enhance_images"`
	ParallelImages int             `yaml:"parallel_images"`
	OutputDir      string          `yaml:"output_dir"`
	Tasks          Tasks           `yaml:"tasks"`
}

// Default returns sane defaults.
func Default() *Config {
	return &Config{
		OCR:            OCR{Model: "mistral-ocr-latest", MaxFileMB: 100},
		ParallelImages: 3,
		OutputDir:      "output",
		Tasks: Tasks{
			Listen:        ":8080",
			DBPath:        "markmuse.db",
			VisibilitySec: 600,
			MaxAttempts:   3,
		},
	}
}

// Load reads a YAML config file over the defaults, then applies the
// environment. An empty path skips the file and uses defaults + env only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	setStr(&c.OCR.APIKey, "MISTRAL_API_KEY")
	setStr(&c.OCR.BaseURL, "MISTRAL_BASE_URL")

	setStr(&c.LLM.APIKey, "OPENAI_API_KEY")
	setStr(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	setStr(&c.LLM.Model, "MODEL_NAME")

	setStr(&c.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&c.S3.SecretKey, "S3_SECRET_KEY")
	setStr(&c.S3.Bucket, "S3_BUCKET")
	setStr(&c.S3.Endpoint, "S3_ENDPOINT_URL")
	setStr(&c.S3.Region, "S3_REGION")
	setStr(&c.S3.PublicURL, "S3_PUBLIC_URL")
	setStr(&c.S3.PathPrefix, "S3_PATH_PREFIX")
	if v := os.Getenv("S3_USE_SSL"); v != "" {
		c.S3.UseSSL = v == "true" || v == "1"
	}

	if v := os.Getenv("PARALLEL_IMAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ParallelImages = n
		}
	}
}

func setStr(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Validate checks cross-field consistency. The OCR key is checked by the
// binaries that actually call OCR, not here, so offline use (tests, resolve
// tooling) stays possible.
func (c *Config) Validate() error {
	if c.ParallelImages <= 0 {
		return fmt.Errorf("config: parallel_images must be > 0")
	}
	if c.UseS3 {
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("config: use_s3 enabled: %w", err)
		}
	}
	if c.Tasks.DBPath == "" {
		return fmt.Errorf("config: tasks.db_path is required")
	}
	return nil
}

// MaxFileBytes returns the preflight size limit in bytes (0 = unlimited).
func (c *Config) MaxFileBytes() int64 {
	return int64(c.OCR.MaxFileMB) * 1024 * 1024
}
