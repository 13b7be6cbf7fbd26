// Package config loads service settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Extractor backends.
const (
	ExtractorGemini    = "gemini"
	ExtractorAzure     = "azure"
	ExtractorSimulated = "simulated"
)

// Config holds every setting the commands read.
type Config struct {
	Port string

	GCPProject string
	GCSBucket  string
	BQDataset  string

	Extractor           string
	GeminiModel         string
	AzureVisionEndpoint string
	AzureVisionKey      string

	DatabaseURL string
	RabbitMQURL string
	ScanQueue   string

	ScanConcurrency      int
	ImageMaxDimension    int
	ImageJPEGQuality     int
	DoubleCheckThreshold decimal.Decimal
	ExtractTimeout       time.Duration

	RateLimitPerMinute int
	CORSOrigin         string

	NotionToken string
	NotionDBID  string

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:                getenv("PORT", "8080"),
		GCPProject:          getenv("GCP_PROJECT", ""),
		GCSBucket:           getenv("GCS_BUCKET", ""),
		BQDataset:           getenv("BQ_DATASET", "tipenter"),
		Extractor:           strings.ToLower(getenv("EXTRACTOR", ExtractorGemini)),
		GeminiModel:         getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		AzureVisionEndpoint: getenv("AZURE_VISION_ENDPOINT", ""),
		AzureVisionKey:      getenv("AZURE_VISION_KEY", ""),
		DatabaseURL:         getenv("DATABASE_URL", ""),
		RabbitMQURL:         getenv("RABBITMQ_URL", ""),
		ScanQueue:           getenv("SCAN_QUEUE", "tipenter.scan"),
		ScanConcurrency:     getInt("SCAN_CONCURRENCY", 4),
		ImageMaxDimension:   getInt("IMAGE_MAX_DIMENSION", 1600),
		ImageJPEGQuality:    getInt("IMAGE_JPEG_QUALITY", 80),
		ExtractTimeout:      getDuration("EXTRACT_TIMEOUT", 60*time.Second),
		RateLimitPerMinute:  getInt("RATE_LIMIT_PER_MIN", 60),
		CORSOrigin:          getenv("CORS_ORIGIN", "*"),
		NotionToken:         getenv("NOTION_TOKEN", ""),
		NotionDBID:          getenv("NOTION_DB_ID", ""),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogFormat:           getenv("LOG_FORMAT", "console"),
	}

	threshold, err := decimal.NewFromString(getenv("DOUBLE_CHECK_THRESHOLD", "50"))
	if err != nil {
		return Config{}, fmt.Errorf("config: DOUBLE_CHECK_THRESHOLD: %w", err)
	}
	cfg.DoubleCheckThreshold = threshold

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c Config) Validate() error {
	switch c.Extractor {
	case ExtractorGemini, ExtractorSimulated:
	case ExtractorAzure:
		if c.AzureVisionEndpoint == "" || c.AzureVisionKey == "" {
			return errors.New("config: EXTRACTOR=azure requires AZURE_VISION_ENDPOINT and AZURE_VISION_KEY")
		}
	default:
		return fmt.Errorf("config: unknown EXTRACTOR %q", c.Extractor)
	}
	if c.ScanConcurrency < 1 {
		return fmt.Errorf("config: SCAN_CONCURRENCY must be >= 1, got %d", c.ScanConcurrency)
	}
	if c.ImageJPEGQuality < 1 || c.ImageJPEGQuality > 100 {
		return fmt.Errorf("config: IMAGE_JPEG_QUALITY must be 1-100, got %d", c.ImageJPEGQuality)
	}
	return nil
}

// BigQueryEnabled reports whether receipts are persisted to BigQuery.
func (c Config) BigQueryEnabled() bool { return c.GCPProject != "" && c.BQDataset != "" }

// StorageEnabled reports whether images are uploaded to Cloud Storage.
func (c Config) StorageEnabled() bool { return c.GCSBucket != "" }

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
