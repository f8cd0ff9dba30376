package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrMissingJWTSecret = errors.New("JWT_SECRET is required")
	ErrShortJWTSecret   = errors.New("JWT_SECRET must be at least 32 characters long")
	ErrSessionBackend   = errors.New("SESSION_BACKEND must be one of memory, redis, dynamodb")
)

const (
	SessionMemory   = "memory"
	SessionRedis    = "redis"
	SessionDynamoDB = "dynamodb"
)

type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	DatabaseURL    string
	MigrationsPath string

	SessionBackend       string
	SessionTTL           time.Duration
	RedisAddr            string
	DynamoDBSessionTable string

	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroup     string
	OutboxInterval time.Duration
	NotifierDedup  string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	AdminEmail    string
	AdminPassword string

	SMTPHost string
	SMTPPort string
	SMTPFrom string

	LowStockThreshold int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("log.level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("database.url", "")
	v.SetDefault("migrations.path", "internal/infrastructure/store/migrations")
	v.SetDefault("session.backend", SessionMemory)
	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("dynamodb.session.table", "sessions")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "ec-events")
	v.SetDefault("kafka.group", "email-notifier")
	v.SetDefault("outbox.interval", 2*time.Second)
	v.SetDefault("notifier.dedup", SessionMemory)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "ec-storefront")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", "1025")
	v.SetDefault("smtp.from", "noreply@example.com")
	v.SetDefault("low.stock.threshold", 10)
}

// Load reads configuration from the environment. Keys map to upper-case
// variables with dots replaced by underscores, so "kafka.brokers" is read
// from KAFKA_BROKERS.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		AppEnv:               v.GetString("app.env"),
		LogLevel:             v.GetString("log.level"),
		HTTPAddr:             v.GetString("http.addr"),
		DatabaseURL:          v.GetString("database.url"),
		MigrationsPath:       v.GetString("migrations.path"),
		SessionBackend:       strings.ToLower(v.GetString("session.backend")),
		SessionTTL:           v.GetDuration("session.ttl"),
		RedisAddr:            v.GetString("redis.addr"),
		DynamoDBSessionTable: v.GetString("dynamodb.session.table"),
		KafkaBrokers:         splitList(v.GetString("kafka.brokers")),
		KafkaTopic:           v.GetString("kafka.topic"),
		KafkaGroup:           v.GetString("kafka.group"),
		OutboxInterval:       v.GetDuration("outbox.interval"),
		NotifierDedup:        strings.ToLower(v.GetString("notifier.dedup")),
		JWTSecret:            v.GetString("jwt.secret"),
		JWTIssuer:            v.GetString("jwt.issuer"),
		JWTTTL:               v.GetDuration("jwt.ttl"),
		AdminEmail:           v.GetString("admin.email"),
		AdminPassword:        v.GetString("admin.password"),
		SMTPHost:             v.GetString("smtp.host"),
		SMTPPort:             v.GetString("smtp.port"),
		SMTPFrom:             v.GetString("smtp.from"),
		LowStockThreshold:    v.GetInt("low.stock.threshold"),
	}
	return cfg, nil
}

// Validate checks the settings the API server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < 32 {
		return ErrShortJWTSecret
	}
	switch c.SessionBackend {
	case SessionMemory, SessionRedis, SessionDynamoDB:
	default:
		return fmt.Errorf("%w: got %q", ErrSessionBackend, c.SessionBackend)
	}
	return nil
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
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
