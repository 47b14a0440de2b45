package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Streams StreamConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Auth    AuthConfig
	Reports ReportConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig locates the hosted database. URL is a postgres:// DSN without
// the secret; Key is the access key applied as the connection password.
type StoreConfig struct {
	URL          string
	Key          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
}

// StreamConfig names the two tables holding sale records.
type StreamConfig struct {
	SalesTable string
	LiveTable  string
}

type RedisConfig struct {
	Addr     string
	CacheTTL time.Duration
}

// KafkaConfig controls sale event publishing. With LiveMirror set the
// service also consumes its own topic and copies each sale into the live
// stream table.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	Enabled    bool
	LiveMirror bool
	GroupID    string
}

type AuthConfig struct {
	OIDCIssuer string
}

type ReportConfig struct {
	Location    *time.Location
	RecentLimit int
}

var (
	ErrMissingStoreURL = errors.New("STORE_URL is required")
	ErrMissingStoreKey = errors.New("STORE_KEY is required")
)

func Load() (*Config, error) {
	tz := getEnv("REPORT_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", tz, err)
	}

	brokers := splitList(getEnv("KAFKA_BROKERS", ""))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			URL:          os.Getenv("STORE_URL"),
			Key:          os.Getenv("STORE_KEY"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("AUTO_MIGRATE", false),
		},
		Streams: StreamConfig{
			SalesTable: getEnv("SALES_TABLE", "flicks"),
			LiveTable:  getEnv("LIVE_TABLE", "elysian"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			CacheTTL: getEnvDuration("REPORT_CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    brokers,
			Topic:      getEnv("KAFKA_SALES_TOPIC", "boxoffice.sales.recorded"),
			Enabled:    getEnvBool("KAFKA_ENABLED", len(brokers) > 0),
			LiveMirror: getEnvBool("KAFKA_LIVE_MIRROR", false),
			GroupID:    getEnv("KAFKA_GROUP_ID", "ms-boxoffice-live"),
		},
		Auth: AuthConfig{
			OIDCIssuer: os.Getenv("OIDC_ISSUER"),
		},
		Reports: ReportConfig{
			Location:    loc,
			RecentLimit: getEnvInt("RECENT_SALES_LIMIT", 5),
		},
	}, nil
}

// Validate reports configuration that would make any store call impossible.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.URL == "" {
		errs = append(errs, ErrMissingStoreURL)
	}
	if c.Store.Key == "" {
		errs = append(errs, ErrMissingStoreKey)
	}
	if c.Streams.SalesTable == "" || c.Streams.LiveTable == "" {
		errs = append(errs, errors.New("SALES_TABLE and LIVE_TABLE must not be empty"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_ENABLED is set but KAFKA_BROKERS is empty"))
	}
	if c.Kafka.LiveMirror && !c.Kafka.Enabled {
		errs = append(errs, errors.New("KAFKA_LIVE_MIRROR needs Kafka to be enabled"))
	}
	return errors.Join(errs...)
}

// DSN returns the store URL with the access key set as the password.
func (s StoreConfig) DSN() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("parse STORE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("STORE_URL must use the postgres scheme, got %q", u.Scheme)
	}

	user := "postgres"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, s.Key)
	return u.String(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
