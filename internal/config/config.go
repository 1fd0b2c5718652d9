package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. The daemon and the reference server read from the same
// struct; each binary validates the fields it needs.
type Config struct {
	Engine EngineConfig
	Server ServerConfig
	Redis  RedisConfig
}

// EngineConfig holds the sync engine settings.
type EngineConfig struct {
	// APIBaseURL is the board API root, e.g. http://localhost:8470.
	APIBaseURL string
	// APIToken is the bearer token; its subject is the account scope.
	APIToken string
	Scope    string
	// Store selects the persistence backend: "file" or "redis".
	Store    string
	StateDir string
	Debounce time.Duration
	// SyncMinDelay is the poll loop's base delay; QuietPeriod guards
	// server overwrites after local edits.
	SyncMinDelay time.Duration
	QuietPeriod  time.Duration
}

// ServerConfig holds the reference board server settings.
type ServerConfig struct {
	Addr            string
	JWTSecret       string //nolint:gosec // G117: signing secret config
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	CORSOrigins     []string
	WritesPerSecond float64
	WriteBurst      int
}

// RedisConfig holds Redis connection settings for the redis store.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
	Prefix   string
}

// Load reads configuration from environment variables. Defaults are safe
// for local development only.
func Load() (*Config, error) {
	debounce, err := getEnvDuration("CORKBOARD_DEBOUNCE", 350*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	syncMin, err := getEnvDuration("CORKBOARD_SYNC_MIN_DELAY", 2500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	quiet, err := getEnvDuration("CORKBOARD_SYNC_QUIET_PERIOD", 900*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("CORKBOARD_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("CORKBOARD_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writesPerSecond, err := getEnvFloat("CORKBOARD_SERVER_WRITES_PER_SECOND", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeBurst, err := getEnvInt("CORKBOARD_SERVER_WRITE_BURST", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CORKBOARD_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	stateDir := getEnv("CORKBOARD_STATE_DIR", "")
	if stateDir == "" {
		home, _ := os.UserHomeDir()
		stateDir = home + "/.corkboard"
	}

	cfg := &Config{
		Engine: EngineConfig{
			APIBaseURL:   getEnv("CORKBOARD_API_URL", "http://localhost:8470"),
			APIToken:     getEnv("CORKBOARD_API_TOKEN", ""),
			Scope:        getEnv("CORKBOARD_SCOPE", "default"),
			Store:        getEnv("CORKBOARD_STORE", "file"),
			StateDir:     stateDir,
			Debounce:     debounce,
			SyncMinDelay: syncMin,
			QuietPeriod:  quiet,
		},
		Server: ServerConfig{
			Addr:            getEnv("CORKBOARD_SERVER_ADDR", ":8470"),
			JWTSecret:       getEnv("CORKBOARD_JWT_SECRET", ""),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			CORSOrigins:     getEnvList("CORKBOARD_CORS_ORIGINS", []string{"http://localhost:5173"}),
			WritesPerSecond: writesPerSecond,
			WriteBurst:      writeBurst,
		},
		Redis: RedisConfig{
			Addr:     getEnv("CORKBOARD_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CORKBOARD_REDIS_PASSWORD", ""),
			DB:       redisDB,
			Prefix:   getEnv("CORKBOARD_REDIS_PREFIX", "corkboard:"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// validate checks value bounds shared by both binaries.
func (c *Config) validate() error {
	if c.Engine.Store != "file" && c.Engine.Store != "redis" {
		return fmt.Errorf("CORKBOARD_STORE must be file or redis, got %q", c.Engine.Store)
	}
	if c.Engine.Debounce <= 0 {
		return fmt.Errorf("CORKBOARD_DEBOUNCE must be positive, got %s", c.Engine.Debounce)
	}
	if c.Engine.SyncMinDelay <= 0 {
		return fmt.Errorf("CORKBOARD_SYNC_MIN_DELAY must be positive, got %s", c.Engine.SyncMinDelay)
	}
	if c.Engine.QuietPeriod <= 0 {
		return fmt.Errorf("CORKBOARD_SYNC_QUIET_PERIOD must be positive, got %s", c.Engine.QuietPeriod)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CORKBOARD_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CORKBOARD_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.WritesPerSecond <= 0 {
		return fmt.Errorf("CORKBOARD_SERVER_WRITES_PER_SECOND must be positive, got %g", c.Server.WritesPerSecond)
	}
	return nil
}

// ValidateServer checks fields the reference server requires.
func (c *Config) ValidateServer() error {
	if c.Server.JWTSecret == "" {
		return errors.New("CORKBOARD_JWT_SECRET is required")
	}
	if len(c.Server.JWTSecret) < 32 {
		return errors.New("CORKBOARD_JWT_SECRET must be at least 32 characters")
	}
	return nil
}

// ValidateEngine checks fields the daemon requires.
func (c *Config) ValidateEngine() error {
	if c.Engine.APIBaseURL == "" {
		return errors.New("CORKBOARD_API_URL is required")
	}
	if c.Engine.APIToken == "" {
		return errors.New("CORKBOARD_API_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
