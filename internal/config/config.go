// Package config loads service settings from the environment and backtest
// run descriptions from YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ismaiel54/backtest-exchange/internal/queue"
)

// Config holds configuration for all services
type Config struct {
	// Service name
	ServiceName string

	// gRPC server port
	GRPCPort int

	// HTTP server port (health, readiness and the trade stream)
	HTTPPort int

	// Log level: debug, info, warn, error
	LogLevel string

	// Kafka brokers (comma-separated). Empty disables trade publishing.
	KafkaBrokers string

	// Topic completed trades are published to
	KafkaTradesTopic string

	// Directory relative dataset paths are resolved against
	DataDir string

	// Quote datasets as name=path.db pairs (comma-separated)
	Datasets string

	// Synthetic dataset served when no datasets are configured
	SyntheticSymbols string
	SyntheticSteps   int
	SyntheticSeed    int64

	// Exchange gRPC address (for broker-client)
	ExchangeAddr string

	// Subscriber mailbox policy for in-process exchanges: grow or drop
	QueuePolicy   string
	QueueCapacity int
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig(serviceName string) *Config {
	return &Config{
		ServiceName:      serviceName,
		GRPCPort:         getEnvAsInt("PORT_GRPC", 50051),
		HTTPPort:         getEnvAsInt("PORT_HTTP", 8080),
		LogLevel:         getEnvAsString("LOG_LEVEL", "info"),
		KafkaBrokers:     getEnvAsString("KAFKA_BROKERS", ""),
		KafkaTradesTopic: getEnvAsString("KAFKA_TRADES_TOPIC", "exchange.trades"),
		DataDir:          getEnvAsString("DATA_DIR", "."),
		Datasets:         getEnvAsString("DATASETS", ""),
		SyntheticSymbols: getEnvAsString("SYNTHETIC_SYMBOLS", "AAA,BBB,CCC"),
		SyntheticSteps:   getEnvAsInt("SYNTHETIC_STEPS", 1000),
		SyntheticSeed:    getEnvAsInt64("SYNTHETIC_SEED", 1),
		ExchangeAddr:     getEnvAsString("EXCHANGE_ADDR", "127.0.0.1:50051"),
		QueuePolicy:      getEnvAsString("QUEUE_POLICY", "grow"),
		QueueCapacity:    getEnvAsInt("QUEUE_CAPACITY", 1024),
	}
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Policy parses QueuePolicy.
func (c *Config) Policy() (queue.Policy, error) {
	return queue.ParsePolicy(c.QueuePolicy)
}

// DatasetPaths parses Datasets into name -> path. Relative paths are
// resolved against DataDir.
func (c *Config) DatasetPaths() (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(c.Datasets) == "" {
		return out, nil
	}
	for _, entry := range strings.Split(c.Datasets, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, path, ok := strings.Cut(entry, "=")
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid dataset entry %q, want name=path", entry)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("dataset %q listed twice", name)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.DataDir, path)
		}
		out[name] = path
	}
	return out, nil
}

// Symbols splits SyntheticSymbols.
func (c *Config) Symbols() []string {
	var out []string
	for _, s := range strings.Split(c.SyntheticSymbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
