// config/config.go - Environment configuration
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	Port        string `envconfig:"PORT" default:"3000"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	// Relation store (PostgreSQL)
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      string `envconfig:"DB_PORT" default:"5432"`
	DBUser      string `envconfig:"DB_USER" default:"postgres"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBName      string `envconfig:"DB_NAME" default:"teamhub"`
	DBSSLMode   string `envconfig:"DB_SSLMODE" default:"disable"`

	// Aggregate store
	AggregateBackend string        `envconfig:"AGGREGATE_BACKEND" default:"mongo"`
	MongoURI         string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase    string        `envconfig:"MONGO_DATABASE" default:"teamhub"`
	MongoTimeout     time.Duration `envconfig:"MONGO_TIMEOUT" default:"10s"`

	// Optional infrastructure; empty disables.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	AMQPURL       string `envconfig:"AMQP_URL"`
	AMQPExchange  string `envconfig:"AMQP_EXCHANGE" default:"teamhub.events"`
	SentryDSN     string `envconfig:"SENTRY_DSN"`

	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"10m"`
	ReconcileGrace    time.Duration `envconfig:"RECONCILE_GRACE" default:"2m"`
	RateLimitMax      int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no safe default.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters long")
	}
	switch c.AggregateBackend {
	case BackendMongo, BackendMemory:
	default:
		return fmt.Errorf("AGGREGATE_BACKEND must be %q or %q, got %q", BackendMongo, BackendMemory, c.AggregateBackend)
	}
	if c.ReconcileGrace < 0 {
		return errors.New("RECONCILE_GRACE must not be negative")
	}
	if c.RateLimitMax <= 0 {
		return errors.New("RATE_LIMIT_MAX must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// PostgresDSN prefers DATABASE_URL and falls back to the individual DB_* settings.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
