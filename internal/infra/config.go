package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents deployment wiring loaded from environment variables.
// Engine tunables (queue weights, retry schedule, sweeper cadence) live in
// the YAML file named by ENGINE_CONFIG_PATH and are loaded separately.
type Config struct {
	AppEnv           string
	Port             string
	MetricsPort      string
	DatabaseURL      string
	JWTSecret        string
	StorageDir       string
	StorageBaseURL   string
	GeoIPDBPath      string
	EngineConfigPath string
	ProviderMode     string
	ProviderBaseURL  string
	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// Provider modes selectable via PROVIDER_MODE.
const (
	ProviderModeSynth  = "synth"
	ProviderModeRemote = "remote"
)

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. A .env file, when present, seeds the environment
// first and never overrides real variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		MetricsPort:      getEnv("METRICS_PORT", "9090"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		StorageDir:       getEnv("STORAGE_DIR", "./data/assets"),
		StorageBaseURL:   os.Getenv("STORAGE_BASE_URL"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		EngineConfigPath: os.Getenv("ENGINE_CONFIG_PATH"),
		ProviderMode:     getEnv("PROVIDER_MODE", ProviderModeSynth),
		ProviderBaseURL:  os.Getenv("PROVIDER_BASE_URL"),
		AllowedOrigins:   splitList(os.Getenv("ALLOWED_ORIGINS")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.StorageBaseURL == "" {
		cfg.StorageBaseURL = "http://localhost:" + cfg.Port + "/assets"
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.ProviderMode {
	case ProviderModeSynth:
	case ProviderModeRemote:
		if cfg.ProviderBaseURL == "" {
			return nil, fmt.Errorf("PROVIDER_BASE_URL is required when PROVIDER_MODE=remote")
		}
		if _, err := url.ParseRequestURI(cfg.ProviderBaseURL); err != nil {
			return nil, fmt.Errorf("PROVIDER_BASE_URL is not a valid URL: %w", err)
		}
	default:
		return nil, fmt.Errorf("PROVIDER_MODE must be %q or %q, got %q", ProviderModeSynth, ProviderModeRemote, cfg.ProviderMode)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// splitList parses a comma-separated value into trimmed, non-empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
