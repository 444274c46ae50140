package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"fakturierung-recurring/logger"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Port string

	// Database
	DatabaseURL       string
	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBSSLMode         string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// HTTP
	JWTSecret       string
	AllowedOrigins  string
	BodyLimitBytes  int
	RateLimitMax    int
	RateLimitWindow time.Duration
	CronSecret      string

	// Recurring batch
	RecurringCron         string
	RecurringBatchWorkers int
	RecurringBatchTimeout time.Duration

	// SnowflakeNode seeds invoice numbers. Two processes sharing a node can
	// mint the same number, so serve and run-due need distinct values.
	SnowflakeNode int64

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	bodyLimit := getEnvInt("BODY_LIMIT_BYTES", 0)
	if bodyLimit <= 0 {
		bodyLimit = getEnvInt("BODY_LIMIT_MB", 4) * 1024 * 1024
	}
	jwtSecret := getEnv("JWT_SECRET_KEY", "")
	if strings.TrimSpace(jwtSecret) == "" {
		jwtSecret = getEnv("JWT_SECRET", "")
	}

	config := &Config{
		Port:                  getEnv("PORT", "8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		DBHost:                getEnv("DB_HOST", "db"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBUser:                getEnv("DB_USER", "postgres"),
		DBPassword:            getEnv("DB_PASSWORD", ""),
		DBName:                getEnv("DB_NAME", "fakturierung"),
		DBSSLMode:             getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns:        getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:        getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime:     time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
		JWTSecret:             jwtSecret,
		AllowedOrigins:        getEnv("ALLOWED_ORIGINS", "*"),
		BodyLimitBytes:        bodyLimit,
		RateLimitMax:          getEnvInt("RATE_LIMIT_MAX", 60),
		RateLimitWindow:       time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		CronSecret:            getEnv("CRON_SECRET", ""),
		RecurringCron:         os.Getenv("RECURRING_CRON"),
		RecurringBatchWorkers: getEnvInt("RECURRING_BATCH_WORKERS", 1),
		RecurringBatchTimeout: time.Duration(getEnvInt("RECURRING_BATCH_TIMEOUT_SECONDS", 600)) * time.Second,
		SnowflakeNode:         int64(getEnvInt("SNOWFLAKE_NODE", 1)),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:             getEnv("LOG_OUTPUT", "stdout"),
	}
	if _, set := os.LookupEnv("RECURRING_CRON"); !set {
		config.RecurringCron = "0 6 * * *"
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" && (c.DBHost == "" || c.DBName == "") {
		return fmt.Errorf("DATABASE_URL or DB_HOST and DB_NAME are required")
	}
	if c.DatabaseURL != "" {
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			return fmt.Errorf("DATABASE_URL is invalid: %w", err)
		}
	}
	if c.DBMaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS")
	}
	if c.RateLimitMax < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be at least 1")
	}
	if c.RecurringBatchWorkers < 1 || c.RecurringBatchWorkers > 64 {
		return fmt.Errorf("RECURRING_BATCH_WORKERS must be between 1 and 64")
	}
	if c.RecurringBatchTimeout <= 0 {
		return fmt.Errorf("RECURRING_BATCH_TIMEOUT_SECONDS must be positive")
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be between 0 and 1023")
	}
	if c.RecurringCron != "" {
		if _, err := cron.ParseStandard(c.RecurringCron); err != nil {
			return fmt.Errorf("RECURRING_CRON is invalid: %w", err)
		}
	}
	return nil
}

// DSN returns DATABASE_URL when set, else a key/value DSN built from DB_*.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return defaultValue
}
