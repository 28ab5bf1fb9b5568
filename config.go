package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

type config struct {
	Host          string
	Port          string
	Store         store.Config
	RateLimit     int
	RateWindow    time.Duration
	RateAlgorithm string
	LogLevel      slog.Level
	LogFormat     string

	// AdminToken enables the admin route and restricts store calls to
	// actors bound through it.
	AdminToken string
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig() (config, error) {
	cfg := config{
		Host: env("HOST", "0.0.0.0"),
		Port: env("PORT", "8080"),
		Store: store.Config{
			Backend:   env("STORE_BACKEND", "memory"),
			RedisAddr: env("REDIS_ADDR", "localhost:6379"),
			DSN:       env("DATABASE_DSN", ""),
		},
		RateAlgorithm: env("RATE_ALGORITHM", "fixed"),
		LogFormat:     env("LOG_FORMAT", "text"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
	}

	var err error
	if cfg.Store.Memory.ShardCount, err = strconv.Atoi(env("SHARD_COUNT", "0")); err != nil {
		return cfg, fmt.Errorf("SHARD_COUNT: %w", err)
	}
	if cfg.RateLimit, err = strconv.Atoi(env("RATE_LIMIT", "0")); err != nil {
		return cfg, fmt.Errorf("RATE_LIMIT: %w", err)
	}
	if cfg.RateWindow, err = time.ParseDuration(env("RATE_WINDOW", "1s")); err != nil {
		return cfg, fmt.Errorf("RATE_WINDOW: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
