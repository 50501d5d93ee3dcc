package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	Server      ServerConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Billing     BillingConfig
	Anomaly     AnomalyConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RateLimitPerSecond int
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL               string
	EventsExchange    string
	IngestExchange    string
	IngestQueue       string
	IngestRoutingKey  string
	DLQQueue          string
	PrefetchCount     int
	BillRoutingKey    string
	PaymentRoutingKey string
	ReportRoutingKey  string
	ReadingRoutingKey string
}

// BillingConfig holds billing calculation settings
type BillingConfig struct {
	// TaxRate is kept as a decimal string so it feeds exact decimal math.
	TaxRate string
}

// AnomalyConfig holds reading anomaly screening settings
type AnomalyConfig struct {
	SpikeThreshold            float64
	MinDataPointsForDetection int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "utility-billing-service"),
		Server: ServerConfig{
			Port:               getEnvAsInt("SERVICE_PORT", 8080),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:        getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 50),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			EventsExchange:    getEnv("RABBITMQ_EVENTS_EXCHANGE", "utility-billing.events.exchange"),
			IngestExchange:    getEnv("RABBITMQ_INGEST_EXCHANGE", "utility-billing.readings.exchange"),
			IngestQueue:       getEnv("RABBITMQ_INGEST_QUEUE", "utility-billing.readings.queue"),
			IngestRoutingKey:  getEnv("RABBITMQ_INGEST_ROUTING_KEY", "meter.reading.raw"),
			DLQQueue:          getEnv("RABBITMQ_DLQ_QUEUE", "utility-billing.readings.dlq"),
			PrefetchCount:     getEnvAsInt("RABBITMQ_PREFETCH", 10),
			BillRoutingKey:    getEnv("RABBITMQ_BILL_ROUTING_KEY", "bill.generated"),
			PaymentRoutingKey: getEnv("RABBITMQ_PAYMENT_ROUTING_KEY", "payment.completed"),
			ReportRoutingKey:  getEnv("RABBITMQ_REPORT_ROUTING_KEY", "report.generated"),
			ReadingRoutingKey: getEnv("RABBITMQ_READING_ROUTING_KEY", "meter.reading.accepted"),
		},
		Billing: BillingConfig{
			TaxRate: getEnv("BILLING_TAX_RATE", "0.05"),
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold:            getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", 3.0),
			MinDataPointsForDetection: getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 3),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
