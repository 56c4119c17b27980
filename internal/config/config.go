package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dkp-ledger/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	StoreURL    string
	StoreAPIKey string
	DBPath      string
	ServerPort  string
	LogLevel    string
	CacheTTL    time.Duration
	ActiveDays  int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		StoreURL:    getEnv("STORE_URL", ""),
		StoreAPIKey: getEnv("STORE_API_KEY", ""),
		DBPath:      getEnv("DB_PATH", "dkp.db"),
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CacheTTL:    getEnvDuration("CACHE_TTL", constants.SnapshotTTL),
		ActiveDays:  getEnvInt("ACTIVE_DAYS", constants.ActiveDaysDefault),
	}

	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("STORE_URL is required")
	}

	logger.Info().
		Str("store_url", cfg.StoreURL).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Dur("cache_ttl", cfg.CacheTTL).
		Int("active_days", cfg.ActiveDays).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
