package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config is the process configuration read from the environment
type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"kickstarter"`
	DBPath     string `env:"DB_PATH" envDefault:"kickstarter.db"`

	// MigrationsDir holds the SQL migrations applied on postgres
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	RabbitMQHost     string `env:"RABBITMQ_HOST"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUser     string `env:"RABBITMQ_USER" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`

	EventsQueue       string `env:"EVENTS_QUEUE" envDefault:"kickstarter_events"`
	ConfirmationQueue string `env:"CONFIRMATION_QUEUE" envDefault:"kickstarter_confirmation"`

	// RollupEndpoint is the magic router JSON-RPC url. Empty runs the
	// in-process simulator.
	RollupEndpoint  string   `env:"ROLLUP_ENDPOINT"`
	RollupToken     string   `env:"ROLLUP_TOKEN"`
	HealthEndpoints []string `env:"HEALTH_ENDPOINTS" envSeparator:","`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// Signed requests older than SignatureMaxSkew are refused, so consumed
	// signatures past it can be pruned.
	SignatureMaxSkew       time.Duration `env:"SIGNATURE_MAX_SKEW" envDefault:"5m"`
	SignaturePruneSchedule string        `env:"SIGNATURE_PRUNE_SCHEDULE" envDefault:"0 */5 * * * *"`

	SweepSchedule       string        `env:"SWEEP_SCHEDULE" envDefault:"*/30 * * * * *"`
	ConfirmAttempts     int           `env:"CONFIRM_ATTEMPTS" envDefault:"6"`
	ConfirmInitialDelay time.Duration `env:"CONFIRM_INITIAL_DELAY" envDefault:"500ms"`

	KeystoreDir string `env:"KEYSTORE_DIR" envDefault:"configs/keystore"`
}

// Load reads .env when present and parses the environment into a Config
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}
	return Parse()
}

// Parse reads the current environment only
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q, expected postgres or sqlite", c.DBDriver)
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.ConfirmAttempts <= 0 {
		return fmt.Errorf("CONFIRM_ATTEMPTS must be positive")
	}
	if c.SignatureMaxSkew <= 0 {
		return fmt.Errorf("SIGNATURE_MAX_SKEW must be positive")
	}
	return nil
}

// RabbitMQURL is empty when no broker host is configured
func (c *Config) RabbitMQURL() string {
	if c.RabbitMQHost == "" {
		return ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}
