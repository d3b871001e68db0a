package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port         string
	StoreBackend string // "postgres" or "memory"
	DBConn       string
	LogLevel     string
	JWTSecret    string

	// Fraud rule thresholds.
	LargeAmountThreshold decimal.Decimal
	VelocityMaxCount     int
	VelocityWindow       time.Duration
	FraudSweepSpec       string

	// SMTP settings for fraud alert notifications. Empty host disables them.
	SMTPHost        string
	SMTPPort        string
	SMTPUsername    string
	SMTPPassword    string
	SenderEmail     string
	FraudAlertEmail string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		StoreBackend:    getEnv("STORE_BACKEND", "postgres"),
		DBConn:          getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=finledger sslmode=disable"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:       getEnv("JWT_SECRET", "secret"),
		FraudSweepSpec:  getEnv("FRAUD_SWEEP_SPEC", "@every 1m"),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnv("SMTP_PORT", "587"),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SenderEmail:     getEnv("SENDER_EMAIL", "alerts@finledger.local"),
		FraudAlertEmail: getEnv("FRAUD_ALERT_EMAIL", ""),
	}

	threshold, err := decimal.NewFromString(getEnv("FRAUD_LARGE_AMOUNT", "50000"))
	if err != nil {
		return nil, fmt.Errorf("invalid FRAUD_LARGE_AMOUNT: %w", err)
	}
	cfg.LargeAmountThreshold = threshold

	cfg.VelocityMaxCount, err = strconv.Atoi(getEnv("FRAUD_VELOCITY_MAX", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid FRAUD_VELOCITY_MAX: %w", err)
	}

	cfg.VelocityWindow, err = time.ParseDuration(getEnv("FRAUD_VELOCITY_WINDOW", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid FRAUD_VELOCITY_WINDOW: %w", err)
	}

	if cfg.StoreBackend != "postgres" && cfg.StoreBackend != "memory" {
		return nil, fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == "postgres" && cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
