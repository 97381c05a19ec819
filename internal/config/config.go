// Package config reads process configuration from the environment, with an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dvloznov/finance-dashboard/internal/classify"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

// Defaults for optional settings.
const (
	DefaultPort          = "8080"
	DefaultDatabaseURL   = "file:data/app.db"
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultIngestTimeout = 10 * time.Minute
	DefaultUserID        = 1
)

// Config holds every setting used by the binaries.
type Config struct {
	Port           string
	FrontendOrigin string
	APIKey         string

	DBVendor    store.Vendor
	DatabaseURL string

	LogLevel string

	GeminiAPIKey         string
	GeminiModel          string
	RulesPath            string
	SystemPromptPath     string
	ClassifyBatchSize    int
	ClassifyBatchTimeout time.Duration

	IngestTimeout time.Duration

	ArchiveBucket   string
	BigQueryProject string
	BigQueryDataset string

	DefaultUserID int64
}

// Load reads .env (when present) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv without touching the process
// environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}
	cfg := &Config{
		Port:                 r.str("PORT", DefaultPort),
		FrontendOrigin:       r.str("FRONTEND_ORIGIN", "*"),
		APIKey:               r.str("API_KEY", ""),
		DatabaseURL:          r.str("DATABASE_URL", DefaultDatabaseURL),
		LogLevel:             r.str("LOG_LEVEL", "info"),
		GeminiAPIKey:         r.str("GEMINI_API_KEY", ""),
		GeminiModel:          r.str("GEMINI_MODEL", DefaultGeminiModel),
		RulesPath:            r.str("RULES_PATH", ""),
		SystemPromptPath:     r.str("SYSTEM_PROMPT_PATH", ""),
		ClassifyBatchSize:    r.int("CLASSIFY_BATCH_SIZE", classify.DefaultBatchSize),
		ClassifyBatchTimeout: r.duration("CLASSIFY_BATCH_TIMEOUT", classify.DefaultBatchTimeout),
		IngestTimeout:        r.duration("INGEST_TIMEOUT", DefaultIngestTimeout),
		ArchiveBucket:        r.str("ARCHIVE_BUCKET", ""),
		BigQueryProject:      r.str("BIGQUERY_PROJECT", ""),
		BigQueryDataset:      r.str("BIGQUERY_DATASET", ""),
		DefaultUserID:        int64(r.int("DEFAULT_USER_ID", DefaultUserID)),
	}

	vendor, err := store.ParseVendor(getenv("DB_VENDOR"))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("DB_VENDOR: %w", err))
	}
	cfg.DBVendor = vendor

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return cfg, nil
}

// Validate rejects settings no binary can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DBVendor != store.VendorSQLite && c.DBVendor != store.VendorPostgres {
		errs = append(errs, fmt.Errorf("DB_VENDOR: unknown vendor %q", c.DBVendor))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.ClassifyBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("CLASSIFY_BATCH_SIZE must be positive, got %d", c.ClassifyBatchSize))
	}
	if c.ClassifyBatchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CLASSIFY_BATCH_TIMEOUT must be positive, got %s", c.ClassifyBatchTimeout))
	}
	if c.IngestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_TIMEOUT must be positive, got %s", c.IngestTimeout))
	}
	if c.DefaultUserID <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_USER_ID must be positive, got %d", c.DefaultUserID))
	}
	if c.BigQueryProject != "" && c.BigQueryDataset == "" {
		errs = append(errs, errors.New("BIGQUERY_DATASET is required when BIGQUERY_PROJECT is set"))
	}
	return errors.Join(errs...)
}

// AuthEnabled reports whether requests must carry the API key.
func (c *Config) AuthEnabled() bool {
	return c.APIKey != ""
}

// ExportEnabled reports whether stored transactions go to BigQuery.
func (c *Config) ExportEnabled() bool {
	return c.BigQueryProject != ""
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

// duration accepts Go durations ("90s", "2m") and plain seconds.
func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}
