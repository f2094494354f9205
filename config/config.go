package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	BotToken        string
	BotUsername     string
	AdminTelegramID int64
	DatabaseURL     string
	RedisURL        string
	TaskQueue       string

	RemnawaveURL   string
	RemnawaveToken string

	HTTPAddr          string
	HTTPClientTimeout time.Duration
	LogLevel          string
}

// LoadConfig reads .env when present and then the process environment.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, relying on environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*AppConfig, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &AppConfig{
		BotToken:       get("BOT_TOKEN", ""),
		BotUsername:    get("BOT_USERNAME", ""),
		DatabaseURL:    get("DATABASE_URL", ""),
		RedisURL:       get("REDIS_URL", "redis://localhost:6379/0"),
		TaskQueue:      get("TASK_QUEUE", "remnashop:tasks"),
		RemnawaveURL:   strings.TrimRight(get("REMNAWAVE_URL", ""), "/"),
		RemnawaveToken: get("REMNAWAVE_TOKEN", ""),
		HTTPAddr:       get("HTTP_ADDR", ":8080"),
		LogLevel:       get("LOG_LEVEL", "info"),
	}

	var missing []string
	for key, v := range map[string]string{
		"BOT_TOKEN":         cfg.BotToken,
		"ADMIN_TELEGRAM_ID": get("ADMIN_TELEGRAM_ID", ""),
		"DATABASE_URL":      cfg.DatabaseURL,
		"REMNAWAVE_URL":     cfg.RemnawaveURL,
		"REMNAWAVE_TOKEN":   cfg.RemnawaveToken,
	} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("critical environment variables are missing: %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.AdminTelegramID, err = strconv.ParseInt(get("ADMIN_TELEGRAM_ID", ""), 10, 64); err != nil {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID: %w", err)
	}
	if cfg.HTTPClientTimeout, err = time.ParseDuration(get("HTTP_CLIENT_TIMEOUT", "15s")); err != nil {
		return nil, fmt.Errorf("HTTP_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.HTTPClientTimeout <= 0 {
		return nil, errors.New("HTTP_CLIENT_TIMEOUT must be positive")
	}
	return cfg, nil
}
