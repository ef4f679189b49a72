package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level settings read from the environment.
type Config struct {
	Port           string
	AllowedOrigins []string
	DefaultRoom    string
	LogLevel       slog.Level
	RoomIdleTTL    time.Duration
	CursorRate     float64
	CursorBurst    int
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:           getEnvOrDefault("PORT", "3001"),
		AllowedOrigins: splitList(getEnvOrDefault("ALLOWED_ORIGIN", "http://localhost:3000")),
		DefaultRoom:    getEnvOrDefault("DEFAULT_ROOM", "main"),
		LogLevel:       parseLevel(os.Getenv("LOG_LEVEL")),
	}

	var err error
	if cfg.RoomIdleTTL, err = time.ParseDuration(getEnvOrDefault("ROOM_IDLE_TTL", "10m")); err != nil {
		return nil, fmt.Errorf("ROOM_IDLE_TTL: %w", err)
	}
	if cfg.CursorRate, err = strconv.ParseFloat(getEnvOrDefault("CURSOR_RATE", "0"), 64); err != nil {
		return nil, fmt.Errorf("CURSOR_RATE: %w", err)
	}
	if cfg.CursorBurst, err = strconv.Atoi(getEnvOrDefault("CURSOR_BURST", "10")); err != nil {
		return nil, fmt.Errorf("CURSOR_BURST: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.RoomIdleTTL < 0 {
		return fmt.Errorf("ROOM_IDLE_TTL must not be negative, got %s", cfg.RoomIdleTTL)
	}
	if cfg.CursorRate < 0 {
		return fmt.Errorf("CURSOR_RATE must not be negative, got %v", cfg.CursorRate)
	}
	if cfg.CursorRate > 0 && cfg.CursorBurst < 1 {
		return fmt.Errorf("CURSOR_BURST must be at least 1 when CURSOR_RATE is set, got %d", cfg.CursorBurst)
	}
	if len(cfg.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGIN must name at least one origin")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
