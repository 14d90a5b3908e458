package documents

import (
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config holds document storage configuration
type Config struct {
	Backend string

	// LocalPath is the root directory of the local backend.
	LocalPath string

	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
}

// LoadConfig loads storage configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Backend:         env.GetEnv("DOCUMENTS_BACKEND", BackendLocal),
		LocalPath:       env.GetEnv("DOCUMENTS_LOCAL_PATH", "./data/reports"),
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
		if c.LocalPath == "" {
			return errors.New("DOCUMENTS_LOCAL_PATH is required for the local backend")
		}
	case BackendS3:
		if c.AccessKeyID == "" {
			return errors.New("S3_ACCESS_KEY_ID is required for the s3 backend")
		}
		if c.SecretAccessKey == "" {
			return errors.New("S3_SECRET_ACCESS_KEY is required for the s3 backend")
		}
		if c.BucketName == "" {
			return errors.New("S3_BUCKET_NAME is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown DOCUMENTS_BACKEND %q", c.Backend)
	}
	return nil
}

// ObjectKey generates the storage key of an order's document.
// Format: reports/YYYY/MM/<orderID><ext>
func ObjectKey(orderID, ext string, at time.Time) string {
	return path.Join("reports", fmt.Sprintf("%04d", at.Year()), fmt.Sprintf("%02d", int(at.Month())), orderID+ext)
}
