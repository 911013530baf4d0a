package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	ComicBackendURL  string
	PollInterval     time.Duration
	GatewayTimeout   time.Duration
	StoragePath      string
	DeviceIDPath     string
	GeoIPDBPath      string
	DefaultLocale    string
	AllowedOrigins   string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	SessionRetention time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ComicBackendURL:  getEnv("COMIC_BACKEND_URL", "http://localhost:5000"),
		PollInterval:     time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 3)),
		GatewayTimeout:   time.Second * time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 60)),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		DeviceIDPath:     getEnv("DEVICE_ID_PATH", "./storage/device_id"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "en"),
		AllowedOrigins:   getEnv("ALLOWED_ORIGINS", "*"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		SessionRetention: time.Minute * time.Duration(getEnvInt("SESSION_RETENTION_MINUTES", 30)),
	}

	if cfg.ComicBackendURL == "" {
		return nil, fmt.Errorf("COMIC_BACKEND_URL is required")
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
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
