package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	DefaultPluggyBaseURL = "https://api.pluggy.ai"
)

type Config struct {
	Port        string
	DatabaseURL string
	StoreDriver string
	Environment string
	LogLevel    string

	JWTSecret         string
	DataEncryptionKey string
	FrontendURL       string

	PluggyClientID      string
	PluggyClientSecret  string
	PluggyBaseURL       string
	PluggyWebhookSecret string

	RateLimitPerMinute int
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	// .env is optional; deployments pass plain environment variables.
	_ = godotenv.Load()

	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		Environment: strings.ToLower(getEnv("ENVIRONMENT", "development")),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		DataEncryptionKey: os.Getenv("DATA_ENCRYPTION_KEY"),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:3000"),

		PluggyClientID:      os.Getenv("PLUGGY_CLIENT_ID"),
		PluggyClientSecret:  os.Getenv("PLUGGY_CLIENT_SECRET"),
		PluggyBaseURL:       strings.TrimRight(getEnv("PLUGGY_BASE_URL", DefaultPluggyBaseURL), "/"),
		PluggyWebhookSecret: os.Getenv("PLUGGY_WEBHOOK_SECRET"),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings every command needs. Aggregator credentials
// are checked where the client is built.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, errors.New("STORE_DRIVER must be postgres or memory"))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DataEncryptionKey == "" {
		errs = append(errs, errors.New("DATA_ENCRYPTION_KEY is required"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
