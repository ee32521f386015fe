// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Risk screening
	RiskTerms []string // Substrings that flag a payment message for review

	// Security
	RateLimitRPM int // Max requests per IP per minute

	// Observability
	OTLPEndpoint string // OpenTelemetry collector endpoint (optional, tracing off if not set)
}

// Defaults
const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultRiskTerms    = "otp,urgent,refund,click"
	DefaultRateLimitRPM = 300
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:  os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RiskTerms:    splitTerms(getEnv("RISK_TERMS", DefaultRiskTerms)),
		RateLimitRPM: int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive, got %d", c.RateLimitRPM)
	}
	if len(c.RiskTerms) == 0 {
		return fmt.Errorf("RISK_TERMS must contain at least one term")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func splitTerms(raw string) []string {
	var terms []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
