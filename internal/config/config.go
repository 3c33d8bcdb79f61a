// Package config loads service configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the API process.
type Config struct {
	Env  string
	Port int

	DatabaseURL string
	JWTSecret   string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	UseRedisCache bool

	ResendAPIKey string
	MailFrom     string
	BaseURL      string

	WorkerConcurrency int
}

// Load reads the environment (merging a .env file when present) and validates
// required settings.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:           getenv("APP_ENV", "development"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisHost:     getenv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getenv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
		MailFrom:      getenv("MAIL_FROM", "Gatekeep <no-reply@gatekeep.dev>"),
		BaseURL:       getenv("BASE_URL", "http://localhost:8080"),
	}

	port, err := strconv.Atoi(getenv("PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("config: invalid PORT %q", os.Getenv("PORT"))
	}
	cfg.Port = port
	cfg.UseRedisCache = strings.EqualFold(getenv("USE_REDIS_CACHE", "false"), "true")

	concurrency, err := strconv.Atoi(getenv("WORKER_CONCURRENCY", "1"))
	if err != nil || concurrency < 1 {
		return nil, fmt.Errorf("config: invalid WORKER_CONCURRENCY %q", os.Getenv("WORKER_CONCURRENCY"))
	}
	cfg.WorkerConcurrency = concurrency

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.IsProduction() && cfg.ResendAPIKey == "" {
		missing = append(missing, "RESEND_API_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// Addr is the listen address derived from PORT.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// RedisAddr is the host:port of the shared Redis instance.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, c.RedisPort)
}

// IsProduction reports whether the process runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
