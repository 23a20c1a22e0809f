package archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/PricePilot/PricePilot/internal/pkg/env"
)

// Config holds S3 archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("S3_ARCHIVE_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 archiving is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if S3 archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey generates the S3 object key for one day of price history
func (c *Config) GetObjectKey(day time.Time) string {
	// Format: history/YYYY/MM/YYYY-MM-DD.csv
	return fmt.Sprintf("history/%04d/%02d/%s.csv", day.Year(), int(day.Month()), day.Format("2006-01-02"))
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}

// GetBucketName returns the bucket name as configured (no automatic prefixing)
func (c *Config) GetBucketName() string {
	return c.BucketName
}
