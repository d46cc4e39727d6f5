// Package server is the HTTP adapter: configuration from the
// environment, the route surface, middleware, the store-backed location
// resolver, and the cache refresh scheduler.
package server

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/meteomancer/weatheroracle/internal/geocode"
	"github.com/meteomancer/weatheroracle/internal/nwp"
)

// Config is everything the server reads from the environment. Every
// knob has a default; REDIS_URL and DATABASE_URL switch optional
// backends on when present.
type Config struct {
	Port            string
	DevMode         bool
	GeocodingURL    string
	ForecastURL     string
	RedisURL        string
	DatabaseURL     string
	CacheTTL        time.Duration
	CacheDisabled   bool
	ForecastDays    int
	Models          []string
	MinSuccessRate  float64
	RequestDelay    time.Duration
	RefreshInterval time.Duration
	ModelsFile      string
	Logger          *slog.Logger
}

// LoadConfig reads the environment into a Config. DEV_MODE is read
// before anything else so the logger that reports on the remaining
// variables already has the right handler.
func LoadConfig() Config {
	devMode, err := strconv.ParseBool(os.Getenv("DEV_MODE"))
	if err != nil {
		devMode = false
	}

	var logger *slog.Logger
	if devMode {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	models := splitModels(getEnv("MODELS", strings.Join(nwp.DefaultModelIDs(), ","), logger))
	minRate := getEnvAsFloat("MIN_SUCCESS_RATE", 1/float64(max(len(models), 1)), logger)

	return Config{
		Port:            getEnv("PORT", "8080", logger),
		DevMode:         devMode,
		GeocodingURL:    getEnv("GEOCODING_BASE_URL", geocode.DefaultBaseURL, logger),
		ForecastURL:     getEnv("FORECAST_BASE_URL", nwp.DefaultBaseURL, logger),
		RedisURL:        os.Getenv("REDIS_URL"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		CacheTTL:        time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 3600, logger)) * time.Second,
		CacheDisabled:   getEnvAsBool("CACHE_DISABLED", false, logger),
		ForecastDays:    getEnvAsInt("FORECAST_DAYS", 7, logger),
		Models:          models,
		MinSuccessRate:  minRate,
		RequestDelay:    time.Duration(getEnvAsInt("REQUEST_DELAY_MS", 0, logger)) * time.Millisecond,
		RefreshInterval: getEnvAsDuration("REFRESH_INTERVAL", 0, logger),
		ModelsFile:      os.Getenv("MODELS_FILE"),
		Logger:          logger,
	}
}

// getEnv retrieves an environment variable by key, with a fallback value.
func getEnv(key, fallback string, logger *slog.Logger) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	logger.Debug("environment variable not set, using fallback", "key", key, "fallback", fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer, with a fallback value.
func getEnvAsInt(key string, fallback int, logger *slog.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		logger.Debug("environment variable not set, using fallback", "key", key, "fallback", fallback)
		return fallback
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		logger.Warn("invalid integer value for environment variable, using fallback", "key", key, "value", valStr, "error", err)
		return fallback
	}
	return val
}

// getEnvAsBool retrieves an environment variable as a boolean, with a fallback value.
func getEnvAsBool(key string, fallback bool, logger *slog.Logger) bool {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		logger.Warn("invalid boolean value for environment variable, using fallback", "key", key, "value", valStr, "error", err)
		return fallback
	}
	return val
}

// getEnvAsFloat retrieves an environment variable as a float, with a fallback value.
func getEnvAsFloat(key string, fallback float64, logger *slog.Logger) float64 {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		logger.Warn("invalid float value for environment variable, using fallback", "key", key, "value", valStr, "error", err)
		return fallback
	}
	return val
}

// getEnvAsDuration retrieves an environment variable as a duration, with a
// fallback value. Accepts Go duration strings ("15m") or a bare number of
// minutes.
func getEnvAsDuration(key string, fallback time.Duration, logger *slog.Logger) time.Duration {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if val, err := time.ParseDuration(valStr); err == nil {
		return val
	}
	if minutes, err := strconv.Atoi(valStr); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	logger.Warn("invalid duration value for environment variable, using fallback", "key", key, "value", valStr, "fallback", fallback)
	return fallback
}

// splitModels parses a comma-separated model list, dropping empty items.
func splitModels(csv string) []string {
	var models []string
	for _, id := range strings.Split(csv, ",") {
		if id = strings.TrimSpace(id); id != "" {
			models = append(models, id)
		}
	}
	return models
}
