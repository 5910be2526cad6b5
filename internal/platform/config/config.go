package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration.
//
// Sources are layered: defaults, then the YAML file named by HEMOGRID_CONFIG,
// then environment variables (optionally loaded from .env).
type Config struct {
	Server   Server         `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Engine   EngineConfig   `yaml:"engine"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string `yaml:"addr"`
	Environment    string `yaml:"environment"`
	JWTSigningKey  string `yaml:"jwt_signing_key"`
	JWTIssuer      string `yaml:"jwt_issuer"`
	JWTAudience    string `yaml:"jwt_audience"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// DatabaseConfig selects the Postgres store. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
	TxTimeout       time.Duration `yaml:"tx_timeout"`
	Migrate         bool          `yaml:"migrate"`
}

// RedisConfig configures the sweep lock. An empty URL selects a process-local lock.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig configures notification publishing. No brokers selects the log publisher.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	NotificationTopic string   `yaml:"notification_topic"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
	// Consecutive publish failures before the publisher stops calling the
	// broker for BreakerCooldown.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// EngineConfig tunes the request lifecycle engine.
type EngineConfig struct {
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	SweepLockTTL      time.Duration `yaml:"sweep_lock_ttl"`
	AcceptRetries     int           `yaml:"accept_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	FanOutConcurrency int           `yaml:"fan_out_concurrency"`
	FanOutTimeout     time.Duration `yaml:"fan_out_timeout"`
	ListLimit         int           `yaml:"list_limit"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: Server{
			Addr:           ":8080",
			Environment:    "development",
			JWTSigningKey:  "dev-secret-key-change-in-production",
			JWTIssuer:      "hemogrid",
			JWTAudience:    "hemogrid-api",
			MetricsEnabled: true,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			LockTimeout:     2 * time.Second,
			TxTimeout:       5 * time.Second,
			Migrate:         true,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			NotificationTopic: "hemogrid.notifications",
			Partitions:        3,
			ReplicationFactor: 1,
			BreakerThreshold:  5,
			BreakerCooldown:   30 * time.Second,
		},
		Engine: EngineConfig{
			SweepInterval:     time.Minute,
			SweepLockTTL:      30 * time.Second,
			AcceptRetries:     3,
			RetryBackoff:      20 * time.Millisecond,
			FanOutConcurrency: 8,
			FanOutTimeout:     30 * time.Second,
			ListLimit:         100,
		},
	}
}

// Load builds the configuration from all sources so main stays lean.
func Load() (Config, error) {
	// .env is optional; a missing file is the normal production case.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("HEMOGRID_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "HEMOGRID_ADDR")
	setString(&cfg.Server.Environment, "HEMOGRID_ENV")
	setString(&cfg.Server.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&cfg.Server.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.Server.JWTAudience, "JWT_AUDIENCE")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Kafka.NotificationTopic, "KAFKA_NOTIFICATION_TOPIC")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}

	var err error
	if cfg.Server.MetricsEnabled, err = envBool("METRICS_ENABLED", cfg.Server.MetricsEnabled); err != nil {
		return err
	}
	if cfg.Database.Migrate, err = envBool("DATABASE_MIGRATE", cfg.Database.Migrate); err != nil {
		return err
	}
	if cfg.Engine.SweepInterval, err = envDuration("SWEEP_INTERVAL", cfg.Engine.SweepInterval); err != nil {
		return err
	}
	if cfg.Engine.SweepLockTTL, err = envDuration("SWEEP_LOCK_TTL", cfg.Engine.SweepLockTTL); err != nil {
		return err
	}
	if cfg.Engine.AcceptRetries, err = envInt("ACCEPT_RETRIES", cfg.Engine.AcceptRetries); err != nil {
		return err
	}
	if cfg.Engine.FanOutConcurrency, err = envInt("FAN_OUT_CONCURRENCY", cfg.Engine.FanOutConcurrency); err != nil {
		return err
	}
	return nil
}

// IsProduction reports whether the server runs with production defaults.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
