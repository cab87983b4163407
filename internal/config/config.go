// Package config reads the client's settings from the environment.
//
// WHERE SETTINGS COME FROM:
//  1. the process environment
//  2. a .env file in the working directory, if there is one
//
// A variable already set in the environment wins over the .env file, so
// `API_URL=... reviewctl services` works even when .env sets API_URL.
//
// Settings are read once at startup and treated as immutable.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Identity providers the client can use.
const (
	ProviderFirebase = "firebase"
	ProviderMemory   = "memory"
)

// Config holds every setting the client reads.
type Config struct {
	// Backend
	APIURL       string
	HTTPTimeout  time.Duration
	APIRateLimit float64 // requests per second; 0 disables the limit

	// Identity provider
	IdentityProvider   string
	FirebaseAPIKey     string
	GoogleClientID     string
	GoogleClientSecret string

	// Local state (provider sign-in, session cookie)
	StateDBPath string

	// UI
	SearchDebounce time.Duration

	// Logging
	LogLevel slog.Level
}

// Load reads the environment after applying envFiles (default ".env").
// Missing env files are ignored; malformed ones are an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", file, err)
		}
	}

	cfg := &Config{
		APIURL:             getEnvString("API_URL", "http://localhost:5000"),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		APIRateLimit:       getEnvFloat("API_RATE_LIMIT", 10),
		IdentityProvider:   strings.ToLower(getEnvString("IDENTITY_PROVIDER", ProviderFirebase)),
		FirebaseAPIKey:     os.Getenv("FIREBASE_API_KEY"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		StateDBPath:        os.Getenv("STATE_DB_PATH"),
		SearchDebounce:     getEnvDuration("SEARCH_DEBOUNCE", 500*time.Millisecond),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnvString("LOG_LEVEL", "warn"))); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	switch cfg.IdentityProvider {
	case ProviderFirebase:
		if cfg.FirebaseAPIKey == "" {
			return nil, fmt.Errorf("config: FIREBASE_API_KEY is required when IDENTITY_PROVIDER=%s", ProviderFirebase)
		}
	case ProviderMemory:
	default:
		return nil, fmt.Errorf("config: unknown IDENTITY_PROVIDER %q (want %s or %s)",
			cfg.IdentityProvider, ProviderFirebase, ProviderMemory)
	}

	if cfg.StateDBPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("config: STATE_DB_PATH not set and no user config dir: %w", err)
		}
		cfg.StateDBPath = filepath.Join(dir, "service-review", "state.db")
	}

	return cfg, nil
}

// GoogleEnabled reports whether federated sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
