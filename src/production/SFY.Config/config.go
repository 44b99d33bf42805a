package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Run history store kinds
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// Config holds all dashboard service configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Hub (directory, detail and file services) configuration
	Hub HubConfig `json:"hub"`

	// Discovery scheduling configuration
	Discovery DiscoveryConfig `json:"discovery"`

	// Run history store configuration
	Store StoreConfig `json:"store"`

	// MQTT failure reporting configuration
	MQTT MQTTConfig `json:"mqtt"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// CORS configuration
	CORS CORSConfig `json:"cors"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// HubConfig holds the data hub connection settings
type HubConfig struct {
	URL     string        `json:"url"`
	Token   string        `json:"-"`
	Timeout time.Duration `json:"timeout"`

	// MaxRetries is zero by default: one attempt per call per run.
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`

	// BreakerMaxFailures is zero by default: the circuit breaker is disabled.
	BreakerMaxFailures int           `json:"breaker_max_failures"`
	BreakerReset       time.Duration `json:"breaker_reset"`
}

// DiscoveryConfig holds discovery run scheduling
type DiscoveryConfig struct {
	Interval   time.Duration `json:"interval"` // 0 disables periodic runs
	OnStart    bool          `json:"on_start"`
	RunTimeout time.Duration `json:"run_timeout"`
}

// StoreConfig selects and configures the run history store
type StoreConfig struct {
	Type     string         `json:"type"`
	Mongo    MongoConfig    `json:"mongo"`
	Database DatabaseConfig `json:"database"`
}

// MongoConfig holds MongoDB connection settings
type MongoConfig struct {
	URI        string `json:"-"`
	DBName     string `json:"db_name"`
	Collection string `json:"collection"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	BrokerHost  string        `json:"broker_host"` // empty disables reporting
	BrokerPort  int           `json:"broker_port"`
	BrokerUser  string        `json:"broker_user"`
	BrokerPass  string        `json:"-"`
	UseTLS      bool          `json:"use_tls"`
	CACertPath  string        `json:"ca_cert_path"`
	ClientID    string        `json:"client_id"`
	TopicPrefix string        `json:"topic_prefix"`
	KeepAlive   time.Duration `json:"keep_alive"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout or stderr
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// Load loads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "9010"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		Hub: LoadHubConfig(),
		Discovery: DiscoveryConfig{
			Interval:   getDuration("DISCOVERY_INTERVAL", 0),
			OnStart:    getBool("DISCOVERY_ON_START", true),
			RunTimeout: getDuration("DISCOVERY_RUN_TIMEOUT", 10*time.Minute),
		},
		Store: StoreConfig{
			Type: strings.ToLower(getEnv("RUN_STORE", StoreMemory)),
			Mongo: MongoConfig{
				URI:        getEnv("MONGODB_URI", ""),
				DBName:     getEnv("DB_NAME", "sfy"),
				Collection: getEnv("COLL_NAME", "discovery_runs"),
			},
			Database: DatabaseConfig{
				Host:     getEnv("POSTGRES_HOST", "localhost"),
				Port:     getInt("POSTGRES_PORT", 5432),
				User:     getEnv("POSTGRES_USER", ""),
				Password: getEnv("POSTGRES_PASSWORD", ""),
				DBName:   getEnv("POSTGRES_DB", "sfy"),
				SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConns: getInt("POSTGRES_MAX_CONNS", 5),
				MinConns: getInt("POSTGRES_MIN_CONNS", 1),
			},
		},
		MQTT: MQTTConfig{
			BrokerHost:  getEnv("BROKER_HOST", ""),
			BrokerPort:  getInt("BROKER_PORT", 1883),
			BrokerUser:  getEnv("BROKER_USER", ""),
			BrokerPass:  getEnv("BROKER_PASS", ""),
			UseTLS:      getBool("BROKER_TLS", false),
			CACertPath:  getEnv("BROKER_CA_FILE", ""),
			ClientID:    getEnv("MQTT_CLIENT_ID", "sfy-dashboard"),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "sfy"),
			KeepAlive:   getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout: getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
		},
		Logging: LoadLoggingConfig(),
		CORS: CORSConfig{
			AllowedOrigins:   getStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept"}),
			ExposedHeaders:   getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length"}),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// LoadHubConfig reads the hub settings shared by the service and the CLI
func LoadHubConfig() HubConfig {
	return HubConfig{
		URL:                strings.TrimRight(getEnv("HUB_URL", ""), "/"),
		Token:              getEnv("HUB_TOKEN", ""),
		Timeout:            getDuration("HUB_TIMEOUT", 30*time.Second),
		MaxRetries:         getInt("HUB_MAX_RETRIES", 0),
		RetryDelay:         getDuration("HUB_RETRY_DELAY", 1*time.Second),
		BreakerMaxFailures: getInt("HUB_BREAKER_MAX_FAILURES", 0),
		BreakerReset:       getDuration("HUB_BREAKER_RESET", 30*time.Second),
	}
}

// LoadLoggingConfig reads the logging settings
func LoadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:        getEnv("LOG_LEVEL", "info"),
		Format:       getEnv("LOG_FORMAT", "text"),
		Output:       getEnv("LOG_OUTPUT", "stdout"),
		EnableCaller: getBool("LOG_ENABLE_CALLER", false),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Hub.Validate(); err != nil {
		return err
	}
	if c.Discovery.Interval < 0 {
		return fmt.Errorf("DISCOVERY_INTERVAL must not be negative")
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreMongo:
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("MONGODB_URI is required when RUN_STORE=mongo")
		}
	case StorePostgres:
		if c.Store.Database.User == "" {
			return fmt.Errorf("POSTGRES_USER is required when RUN_STORE=postgres")
		}
		if c.Store.Database.Password == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required when RUN_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown RUN_STORE %q (expected memory, mongo or postgres)", c.Store.Type)
	}

	return nil
}

// Validate validates the hub settings
func (h HubConfig) Validate() error {
	if h.URL == "" {
		return fmt.Errorf("HUB_URL is required")
	}
	if h.MaxRetries < 0 {
		return fmt.Errorf("HUB_MAX_RETRIES must not be negative")
	}
	if h.BreakerMaxFailures < 0 {
		return fmt.Errorf("HUB_BREAKER_MAX_FAILURES must not be negative")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	db := c.Store.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.User, db.Password, db.DBName, db.SSLMode)
}

// ReportingEnabled reports whether an MQTT broker is configured
func (c *Config) ReportingEnabled() bool {
	return c.MQTT.BrokerHost != ""
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
