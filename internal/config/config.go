package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/krystlih/swu-league-manager-sub000/internal/db"
)

const (
	defaultDatabaseURL    = "swu_league.db?_journal_mode=WAL"
	defaultMigrationsPath = "file://migrations"
	defaultServerPort     = 8080
)

type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	MigrationsPath string
	ServerPort     int
	// DiscordToken is optional. Without it round announcements are only logged.
	DiscordToken string
	LogLevel     slog.Level
	// Browser origins allowed to call the API. Empty disables CORS.
	AllowedOrigins []string
}

// Load reads the configuration from the environment, loading a .env file
// first when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDriver: getenv("DATABASE_DRIVER", db.DriverSQLite),
		DatabaseURL:    getenv("DATABASE_URL", defaultDatabaseURL),
		MigrationsPath: getenv("MIGRATIONS_PATH", defaultMigrationsPath),
		ServerPort:     defaultServerPort,
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		LogLevel:       slog.LevelInfo,
	}

	if portStr := os.Getenv("SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
		}
		cfg.ServerPort = port
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL environment variable: %w", err)
		}
	}

	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case db.DriverSQLite, db.DriverPostgres:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", db.DriverSQLite, db.DriverPostgres, c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
