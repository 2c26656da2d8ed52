package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port         string   `mapstructure:"PORT"`
	Env          string   `mapstructure:"ENV"`
	StoreBackend string   `mapstructure:"STORE_BACKEND"`
	DatabaseURL  string   `mapstructure:"DATABASE_URL"`
	DBMaxConns   int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL     string   `mapstructure:"REDIS_URL"`
	AuthIssuer   string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience string   `mapstructure:"AUTH_AUDIENCE"`
	AuthKey      string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins  []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	ReservationDefaultTTL time.Duration `mapstructure:"RESERVATION_DEFAULT_TTL"`
	ReservationMaxTTL     time.Duration `mapstructure:"RESERVATION_MAX_TTL"`
	ReservationGrace      time.Duration `mapstructure:"RESERVATION_GRACE"`
	SweepInterval         time.Duration `mapstructure:"SWEEP_INTERVAL"`

	NotifyBackend     string   `mapstructure:"NOTIFY_BACKEND"`
	NotifySQSQueueURL string   `mapstructure:"NOTIFY_SQS_QUEUE_URL"`
	AuditBackend      string   `mapstructure:"AUDIT_BACKEND"`
	KafkaBrokers      []string `mapstructure:"KAFKA_BROKERS"`
	KafkaAuditTopic   string   `mapstructure:"KAFKA_AUDIT_TOPIC"`
	OTLPEndpoint      string   `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

var keys = []string{
	"PORT", "ENV", "STORE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"RESERVATION_DEFAULT_TTL", "RESERVATION_MAX_TTL", "RESERVATION_GRACE", "SWEEP_INTERVAL",
	"NOTIFY_BACKEND", "NOTIFY_SQS_QUEUE_URL", "AUDIT_BACKEND", "KAFKA_BROKERS",
	"KAFKA_AUDIT_TOPIC", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("RESERVATION_DEFAULT_TTL", "2h")
	v.SetDefault("RESERVATION_MAX_TTL", "48h")
	v.SetDefault("RESERVATION_GRACE", "0s")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("NOTIFY_BACKEND", "log")
	v.SetDefault("AUDIT_BACKEND", BackendPostgres)
	v.SetDefault("KAFKA_AUDIT_TOPIC", "bedlink.audit")

	// Unmarshal only sees env vars that are bound.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList flattens "a,b" entries that arrive as a single env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the cross-field rules Load cannot express as defaults.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case BackendMemory:
		if !c.IsDev() {
			return fmt.Errorf("STORE_BACKEND=memory is only allowed when ENV=development")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StoreBackend)
	}

	if !c.IsDev() && c.AuthKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required outside development")
	}

	if c.ReservationDefaultTTL <= 0 {
		return fmt.Errorf("RESERVATION_DEFAULT_TTL must be positive")
	}
	if c.ReservationMaxTTL < c.ReservationDefaultTTL {
		return fmt.Errorf("RESERVATION_MAX_TTL (%s) must be at least RESERVATION_DEFAULT_TTL (%s)",
			c.ReservationMaxTTL, c.ReservationDefaultTTL)
	}
	if c.ReservationGrace < 0 || c.ReservationGrace > 15*time.Minute {
		return fmt.Errorf("RESERVATION_GRACE must be between 0s and 15m, got %s", c.ReservationGrace)
	}

	switch c.NotifyBackend {
	case "log", "redis", "sqs":
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be log, redis or sqs, got %q", c.NotifyBackend)
	}
	if c.NotifyBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when NOTIFY_BACKEND=redis")
	}
	if c.NotifyBackend == "sqs" && c.NotifySQSQueueURL == "" {
		return fmt.Errorf("NOTIFY_SQS_QUEUE_URL is required when NOTIFY_BACKEND=sqs")
	}

	switch c.AuditBackend {
	case BackendPostgres:
		if c.StoreBackend == BackendMemory {
			return fmt.Errorf("AUDIT_BACKEND=postgres needs STORE_BACKEND=postgres")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when AUDIT_BACKEND=kafka")
		}
	case "log":
	default:
		return fmt.Errorf("AUDIT_BACKEND must be postgres, kafka or log, got %q", c.AuditBackend)
	}
	return nil
}
