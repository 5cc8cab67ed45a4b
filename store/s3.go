package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the S3-compatible backend (AWS S3 or MinIO).
type S3Config struct {
	Endpoint   string `yaml:"endpoint"`    // host[:port]; empty means AWS default
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"use_ssl"`
	PublicURL  string `yaml:"public_url"`  // base URL for public access; defaults to the endpoint
	PathPrefix string `yaml:"path_prefix"` // optional key prefix inside the bucket
}

// Validate checks the fields without which uploads cannot work.
func (c *S3Config) Validate() error {
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("s3: access_key and secret_key are required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("s3: bucket is required")
	}
	return nil
}

// S3 persists artifacts to an S3-compatible object store and returns
// publicly resolvable URLs.
type S3 struct {
	client *minio.Client
	cfg    S3Config
	logger *slog.Logger
}

// NewS3 builds the client. The endpoint defaults to AWS S3 for the
// configured region when empty.
func NewS3(cfg S3Config, logger *slog.Logger) (*S3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
		cfg.UseSSL = true
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: init client: %w", err)
	}
	logger.Info("s3 store initialized", "endpoint", endpoint, "bucket", cfg.Bucket)
	return &S3{client: client, cfg: cfg, logger: logger}, nil
}

// Put uploads data under the (optionally prefixed) key and returns its
// public URL. Existing objects with the same key are overwritten.
func (s *S3) Put(ctx context.Context, data []byte, key, contentType string) (Locator, error) {
	objectKey := s.objectKey(key)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return Locator{}, fmt.Errorf("%w: put %s: %v", ErrRemoteUnavailable, objectKey, err)
	}
	return Locator{URL: s.PublicURL(objectKey), IsRemote: true}, nil
}

func (s *S3) objectKey(key string) string {
	if s.cfg.PathPrefix == "" {
		return key
	}
	return strings.TrimSuffix(s.cfg.PathPrefix, "/") + "/" + key
}

// PublicURL returns the public address of an already-prefixed object key.
func (s *S3) PublicURL(objectKey string) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimSuffix(s.cfg.PublicURL, "/") + "/" + escapeKey(objectKey)
	}
	scheme := "http"
	if s.cfg.UseSSL {
		scheme = "https"
	}
	endpoint := s.cfg.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, endpoint, s.cfg.Bucket, escapeKey(objectKey))
}

// escapeKey percent-encodes each path segment while keeping separators.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
