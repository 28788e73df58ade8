package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName = "pos-inventory"

	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type Config struct {
	HTTPAddr          string
	GRPCAddr          string
	StorageDriver     string
	MySQLDSN          string
	RedisAddr         string
	KafkaBrokers      []string
	KafkaTopic        string
	SendGridAPIKey    string
	AlertFrom         string
	AlertTo           string
	LowStockThreshold int
	LogLevel          string
	ShutdownTimeout   time.Duration
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getEnv("GRPC_ADDR", ":50051"),
		StorageDriver:  getEnv("STORAGE_DRIVER", StorageMySQL),
		MySQLDSN:       getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/pos?parseTime=true"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "pos.domain-events"),
		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		AlertFrom:      os.Getenv("ALERT_FROM"),
		AlertTo:        os.Getenv("ALERT_TO"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	threshold, err := strconv.Atoi(getEnv("LOW_STOCK_THRESHOLD", "10"))
	if err != nil || threshold <= 0 {
		return nil, fmt.Errorf("LOW_STOCK_THRESHOLD must be a positive integer")
	}
	cfg.LowStockThreshold = threshold

	timeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout = timeout

	switch cfg.StorageDriver {
	case StorageMySQL:
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("MYSQL_DSN is required for the mysql storage driver")
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

// AlertsEnabled reports whether low-stock e-mails can be sent.
func (c *Config) AlertsEnabled() bool {
	return c.SendGridAPIKey != "" && c.AlertFrom != "" && c.AlertTo != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
