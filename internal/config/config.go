package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultEndpoint      = "https://api.raceshot.app/api/photographer/upload"
	DefaultPrice         = 30
	DefaultMinPrice      = 30
	DefaultMaxRetries    = 3
	DefaultBackoffFactor = 1.5
	DefaultTimeout       = 30 * time.Second
	DefaultConcurrency   = 20
	DefaultBatchSize     = 1
)

// Config is the complete, immutable configuration for one run. It is built
// once in main from flags and environment and passed in explicitly; nothing
// in the run reads ambient state.
type Config struct {
	Directory string
	EventID   string
	Location  string
	Price     int
	MinPrice  int
	BibNumber string
	Token     string

	// Optional shoot coordinates. Nil means not configured; a partial pair
	// is passed through as-is.
	Longitude *float64
	Latitude  *float64

	Endpoint         string
	MaxRetries       int
	BackoffFactor    float64
	Timeout          time.Duration
	Concurrency      int
	BatchSize        int
	DryRun           bool
	ReuploadFailures bool
	OutputDir        string
}

// LoadEnvFile loads a .env file into the process environment. An explicit
// path must exist; with no path the default ./.env is loaded when present.
// It reports whether a file was actually loaded so the caller can log the
// outcome once logging is set up; this runs before any handler is installed.
func LoadEnvFile(path string) (bool, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return false, fmt.Errorf("loading env file %s: %w", path, err)
		}
		return true, nil
	}
	if err := godotenv.Load(); err != nil {
		return false, nil
	}
	return true, nil
}

// FromEnv builds a Config from RACESHOT_* environment variables, falling
// back to defaults. Unparseable numeric values are logged and replaced with
// the default rather than aborting.
func FromEnv() Config {
	cfg := Config{
		Directory:     os.Getenv("RACESHOT_DIR"),
		EventID:       os.Getenv("RACESHOT_EVENT_ID"),
		Location:      os.Getenv("RACESHOT_LOCATION"),
		Price:         getEnvInt("RACESHOT_PRICE", DefaultPrice),
		MinPrice:      getEnvInt("RACESHOT_MIN_PRICE", DefaultMinPrice),
		BibNumber:     os.Getenv("RACESHOT_BIB_NUMBER"),
		Token:         os.Getenv("RACESHOT_API_TOKEN"),
		Endpoint:      getEnv("RACESHOT_ENDPOINT", DefaultEndpoint),
		MaxRetries:    getEnvInt("RACESHOT_MAX_RETRIES", DefaultMaxRetries),
		BackoffFactor: getEnvFloat("RACESHOT_RETRY_BACKOFF", DefaultBackoffFactor),
		Timeout:       getEnvSeconds("RACESHOT_TIMEOUT", DefaultTimeout),
		Concurrency:   getEnvInt("RACESHOT_CONCURRENCY", DefaultConcurrency),
		BatchSize:     getEnvInt("RACESHOT_BATCH_SIZE", DefaultBatchSize),
		DryRun:        getEnvBool("RACESHOT_DRY_RUN", false),
		OutputDir:     getEnv("RACESHOT_OUTPUT_DIR", defaultOutputDir()),
	}
	if v, ok := getEnvFloatOptional("RACESHOT_LONGITUDE"); ok {
		cfg.Longitude = &v
	}
	if v, ok := getEnvFloatOptional("RACESHOT_LATITUDE"); ok {
		cfg.Latitude = &v
	}
	return cfg
}

// Validate checks required fields and value constraints. Everything wrong is
// collected at once so the operator can fix the invocation in one go.
func (c *Config) Validate() error {
	var errs []error
	if c.Directory == "" {
		errs = append(errs, errors.New("missing source directory: set --dir or RACESHOT_DIR"))
	}
	if c.EventID == "" {
		errs = append(errs, errors.New("missing event id: set --event-id or RACESHOT_EVENT_ID"))
	}
	if c.Location == "" {
		errs = append(errs, errors.New("missing location: set --location or RACESHOT_LOCATION"))
	}
	if c.Token == "" && !c.DryRun {
		errs = append(errs, errors.New("missing API token: set --token or RACESHOT_API_TOKEN"))
	}
	if c.Price < c.MinPrice {
		errs = append(errs, fmt.Errorf("price %d is below the minimum %d", c.Price, c.MinPrice))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.BackoffFactor <= 0 {
		errs = append(errs, fmt.Errorf("backoff factor must be > 0, got %v", c.BackoffFactor))
	}
	if (c.Longitude != nil) != (c.Latitude != nil) {
		// Not fatal: the server does not enforce the pairing either, so the
		// partial pair is passed through rather than rejected.
		slog.Warn("only one of longitude/latitude is configured; sending the partial pair as-is")
	}
	return errors.Join(errs...)
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".raceshot_uploader", "output")
	}
	return filepath.Join(home, ".raceshot_uploader", "output")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid number in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func getEnvFloatOptional(key string) (float64, bool) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid number in environment, ignoring", "key", key, "value", raw)
		return 0, false
	}
	return v, true
}

// getEnvSeconds reads a duration expressed in seconds, e.g. "30" or "2.5".
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		slog.Warn("invalid timeout in environment, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return time.Duration(v * float64(time.Second))
}

func getEnvBool(key string, fallback bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	slog.Warn("invalid boolean in environment, using default", "key", key, "value", raw, "default", fallback)
	return fallback
}
