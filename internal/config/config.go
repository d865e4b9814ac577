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
	ServicePort int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Poll        PollConfig
	Legacy      LegacyConfig
	Scan        ScanConfig
	Devices     []DeviceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL         string
	AutoMigrate bool
	MaxConns    int32
}

// RabbitMQConfig holds the optional notification settings.
// An empty URL disables publishing.
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// PollConfig holds poll cycle settings
type PollConfig struct {
	Interval          time.Duration
	HTTPTimeout       time.Duration
	DeviceTimeout     time.Duration
	StoreTimeout      time.Duration
	Concurrency       int
	WioBaseURL        string
	ThingSpeakBaseURL string
	StoreRawPayload   bool
	DevicesFile       string
}

// LegacyConfig controls the sensor_data wide-table sink
type LegacyConfig struct {
	Enabled bool
}

// ScanConfig holds orphan reading scan settings
type ScanConfig struct {
	OrphanAge time.Duration
	Limit     int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "wiolink-uploader"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8081),
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			AutoMigrate: getEnvAsBool("DATABASE_AUTO_MIGRATE", true),
			MaxConns:    int32(getEnvAsInt("DATABASE_MAX_CONNS", 4)),
		},
		RabbitMQ: RabbitMQConfig{
			URL:        getEnv("RABBITMQ_URL", ""),
			Exchange:   getEnv("RABBITMQ_EXCHANGE", "wiolink.readings.exchange"),
			RoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "reading.ingested"),
		},
		Poll: PollConfig{
			Interval:          getEnvAsDuration("POLL_INTERVAL", 5*time.Minute),
			HTTPTimeout:       getEnvAsDuration("HTTP_TIMEOUT", 5*time.Second),
			DeviceTimeout:     getEnvAsDuration("DEVICE_TIMEOUT", 30*time.Second),
			StoreTimeout:      getEnvAsDuration("STORE_TIMEOUT", 10*time.Second),
			Concurrency:       getEnvAsInt("POLL_CONCURRENCY", 1),
			WioBaseURL:        getEnv("WIO_BASE_URL", "https://cn.wio.seeed.io/v1/node"),
			ThingSpeakBaseURL: getEnv("THINGSPEAK_BASE_URL", "https://api.thingspeak.com"),
			StoreRawPayload:   getEnvAsBool("STORE_RAW_PAYLOAD", true),
			DevicesFile:       getEnv("DEVICES_FILE", ""),
		},
		Legacy: LegacyConfig{
			Enabled: getEnvAsBool("LEGACY_SINK_ENABLED", false),
		},
		Scan: ScanConfig{
			OrphanAge: getEnvAsDuration("SCAN_ORPHAN_AGE", 10*time.Minute),
			Limit:     getEnvAsInt("SCAN_LIMIT", 1000),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.Poll.Concurrency < 1 {
		cfg.Poll.Concurrency = 1
	}

	devices := DefaultDevices()
	if cfg.Poll.DevicesFile != "" {
		loaded, err := LoadDevices(cfg.Poll.DevicesFile)
		if err != nil {
			return nil, err
		}
		devices = loaded
	}
	cfg.Devices = ResolveSecrets(devices, os.Getenv)

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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
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
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
