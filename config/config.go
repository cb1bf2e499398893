package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Tracing  TracingConfig  `yaml:"tracing"`
	LogLevel string         `yaml:"log_level"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address"`
	SwaggerDir     string   `yaml:"swagger_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers                []string `yaml:"brokers"`
	BookingEventsTopic     string   `yaml:"booking_events_topic"`
	NotificationsTopic     string   `yaml:"notifications_topic"`
	ReleaseObligationTopic string   `yaml:"release_obligation_topic"`
	GroupID                string   `yaml:"group_id"`
}

type AuthConfig struct {
	// JWTSecret enables bearer auth on the REST API when non-empty.
	JWTSecret string `yaml:"jwt_secret"`
}

type BookingConfig struct {
	// InventoryBackend is one of "postgres", "redis" or "memory".
	InventoryBackend       string `yaml:"inventory_backend"`
	LedgerBackend          string `yaml:"ledger_backend"`
	LockTimeoutMillis      int    `yaml:"lock_timeout_ms"`
	PNRPrefix              string `yaml:"pnr_prefix"`
	PNRAttempts            int    `yaml:"pnr_attempts"`
	ReleaseAttempts        int    `yaml:"release_attempts"`
	ReleaseBackoffMillis   int    `yaml:"release_backoff_ms"`
	Timezone               string `yaml:"timezone"`
	CatalogCacheTTLSeconds int    `yaml:"catalog_cache_ttl_seconds"`
}

func (b BookingConfig) LockTimeout() time.Duration {
	return time.Duration(b.LockTimeoutMillis) * time.Millisecond
}

func (b BookingConfig) ReleaseBackoff() time.Duration {
	return time.Duration(b.ReleaseBackoffMillis) * time.Millisecond
}

func (b BookingConfig) CatalogCacheTTL() time.Duration {
	return time.Duration(b.CatalogCacheTTLSeconds) * time.Second
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type WorkerConfig struct {
	ReconcileIntervalSeconds int  `yaml:"reconcile_interval_seconds"`
	RepairDrift              bool `yaml:"repair_drift"`
}

type TracingConfig struct {
	XRay       bool   `yaml:"xray"`
	DaemonAddr string `yaml:"daemon_addr"`
	Service    string `yaml:"service"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.BookingEventsTopic == "" {
		c.Kafka.BookingEventsTopic = "booking.events"
	}
	if c.Kafka.NotificationsTopic == "" {
		c.Kafka.NotificationsTopic = "booking.notifications"
	}
	if c.Kafka.ReleaseObligationTopic == "" {
		c.Kafka.ReleaseObligationTopic = "inventory.release_obligations"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "railbooking-worker"
	}
	b := &c.Booking
	if b.InventoryBackend == "" {
		b.InventoryBackend = "postgres"
	}
	if b.LedgerBackend == "" {
		b.LedgerBackend = "postgres"
	}
	if b.LockTimeoutMillis <= 0 {
		b.LockTimeoutMillis = 2000
	}
	if b.PNRPrefix == "" {
		b.PNRPrefix = "PNR"
	}
	if b.PNRAttempts <= 0 {
		b.PNRAttempts = 5
	}
	if b.ReleaseAttempts <= 0 {
		b.ReleaseAttempts = 5
	}
	if b.ReleaseBackoffMillis <= 0 {
		b.ReleaseBackoffMillis = 200
	}
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}
	if b.CatalogCacheTTLSeconds <= 0 {
		b.CatalogCacheTTLSeconds = 60
	}
	if c.Worker.ReconcileIntervalSeconds <= 0 {
		c.Worker.ReconcileIntervalSeconds = 300
	}
	if c.Tracing.DaemonAddr == "" {
		c.Tracing.DaemonAddr = "127.0.0.1:2000"
	}
	if c.Tracing.Service == "" {
		c.Tracing.Service = "railbooking"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
