// Package config loads process configuration from the environment, with an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/keshon/heartline/internal/ai"
	"github.com/keshon/heartline/internal/cleanup"
	"github.com/keshon/heartline/internal/storage"
)

type Config struct {
	StoreBackend string `env:"STORE_BACKEND" envDefault:"file"` // memory|file|sqlite|redis
	StoragePath  string `env:"STORAGE_PATH" envDefault:"data/heartline.json"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/heartline.db"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix  string `env:"REDIS_PREFIX" envDefault:"heartline"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile   string `env:"LOG_FILE"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	AIBaseURL     string        `env:"AI_BASE_URL"`
	AIModel       string        `env:"AI_MODEL"`
	AIAPIKey      string        `env:"AI_API_KEY"`
	AITimeout     time.Duration `env:"AI_TIMEOUT" envDefault:"20s"`
	ClassifierRPS float64       `env:"CLASSIFIER_RPS" envDefault:"1"`

	CleanupMaxLoopAgeDays    int           `env:"CLEANUP_MAX_LOOP_AGE_DAYS" envDefault:"14"`
	CleanupMaxActiveLoops    int           `env:"CLEANUP_MAX_ACTIVE_LOOPS" envDefault:"10"`
	CleanupMaxSurfacedLoops  int           `env:"CLEANUP_MAX_SURFACED_LOOPS" envDefault:"5"`
	CleanupProtectedSalience float64       `env:"CLEANUP_PROTECTED_SALIENCE" envDefault:"0.8"`
	CleanupInterval          time.Duration `env:"CLEANUP_INTERVAL" envDefault:"6h"`
	CleanupOnInit            bool          `env:"CLEANUP_ON_INIT" envDefault:"true"`
	CleanupWorkers           int           `env:"CLEANUP_WORKERS" envDefault:"4"`

	ProfilePath string `env:"PROFILE_PATH"`
	ThreadsMin  int    `env:"THREADS_MIN" envDefault:"3"`
	ThreadsMax  int    `env:"THREADS_MAX" envDefault:"6"`
}

// Load reads .env files (missing files are ignored) and returns the parsed
// config. It reports whether a .env file was found.
func Load(files ...string) (*Config, bool, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	found := false
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case err == nil:
			found = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, false, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	cfg, err := Parse()
	return cfg, found, err
}

// New loads .env and the environment.
func New() (*Config, error) {
	cfg, _, err := Load()
	return cfg, err
}

// Parse decodes the current environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case storage.BackendMemory:
	case storage.BackendFile:
		if c.StoragePath == "" {
			errs = append(errs, errors.New("STORAGE_PATH is required for the file backend"))
		}
	case storage.BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case storage.BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of memory, file, sqlite, redis", c.StoreBackend))
	}
	if c.AIBaseURL != "" && c.AIModel == "" {
		errs = append(errs, errors.New("AI_MODEL is required when AI_BASE_URL is set"))
	}
	if c.ClassifierRPS <= 0 {
		errs = append(errs, errors.New("CLASSIFIER_RPS must be positive"))
	}
	if c.ThreadsMin < 0 || c.ThreadsMax < 1 || c.ThreadsMin > c.ThreadsMax {
		errs = append(errs, fmt.Errorf("THREADS_MIN (%d) and THREADS_MAX (%d) must satisfy 0 <= min <= max, max >= 1", c.ThreadsMin, c.ThreadsMax))
	}
	if c.CleanupProtectedSalience < 0 || c.CleanupProtectedSalience > 1 {
		errs = append(errs, errors.New("CLEANUP_PROTECTED_SALIENCE must be within [0, 1]"))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("CLEANUP_INTERVAL must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// AI returns the provider settings.
func (c *Config) AI() ai.Config {
	return ai.Config{
		BaseURL: c.AIBaseURL,
		Model:   c.AIModel,
		APIKey:  c.AIAPIKey,
		Timeout: c.AITimeout,
	}
}

// Storage returns the store settings.
func (c *Config) Storage() storage.OpenOptions {
	return storage.OpenOptions{
		Backend:     c.StoreBackend,
		Path:        c.StoragePath,
		SQLitePath:  c.SQLitePath,
		RedisAddr:   c.RedisAddr,
		RedisPrefix: c.RedisPrefix,
	}
}

// Cleanup returns the cleanup service options.
func (c *Config) Cleanup() cleanup.Options {
	return cleanup.Options{
		MaxLoopAgeDays:             c.CleanupMaxLoopAgeDays,
		MaxActiveLoops:             c.CleanupMaxActiveLoops,
		MaxSurfacedLoops:           c.CleanupMaxSurfacedLoops,
		ProtectedSalienceThreshold: c.CleanupProtectedSalience,
		Interval:                   c.CleanupInterval,
		CleanupOnInit:              c.CleanupOnInit,
		Workers:                    c.CleanupWorkers,
	}
}
