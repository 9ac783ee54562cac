package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		// A missing .env is fine, the process environment still applies
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	return nil
}

// Config is the full application configuration
type Config struct {
	GoEnv             string        `env:"GO_ENV" envDefault:"development"`
	Port              int           `env:"PORT" envDefault:"8080"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:3001"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	Database      DatabaseConfig     `envPrefix:"DB_"`
	JWT           JWTConfig          `envPrefix:"JWT_"`
	Redis         RedisConfig        `envPrefix:"REDIS_"`
	Razorpay      RazorpayConfig     `envPrefix:"RAZORPAY_"`
	Payments      PaymentConfig      `envPrefix:"PAYMENT_"`
	Notifications NotificationConfig `envPrefix:"NOTIFY_"`
	Spaces        SpacesConfig       `envPrefix:"DO_SPACES_"`
	Kafka         KafkaConfig        `envPrefix:"KAFKA_"`
	SMTP          SMTPConfig         `envPrefix:"SMTP_"`
	Cron          CronConfig         `envPrefix:"CRON_"`
	Seed          SeedConfig         `envPrefix:"SEED_"`
}

// DatabaseConfig selects and configures the SQL store
type DatabaseConfig struct {
	Driver   string `env:"DRIVER" envDefault:"postgres"` // postgres, sqlite
	UserName string `env:"USER_NAME"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
	// Path or DSN used when Driver is sqlite
	SQLitePath string `env:"SQLITE_PATH" envDefault:"learnhub.db"`
}

type JWTConfig struct {
	Secret        string        `env:"SECRET"`
	Issuer        string        `env:"ISSUER" envDefault:"learnhub-api"`
	Expiry        time.Duration `env:"EXPIRY" envDefault:"24h"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"12"`
}

type RedisConfig struct {
	URL string `env:"URL" envDefault:"redis://localhost:6379/0"`
}

// RazorpayConfig holds gateway credentials
type RazorpayConfig struct {
	KeyID         string        `env:"KEY_ID"`
	KeySecret     string        `env:"KEY_SECRET"`
	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	BaseURL       string        `env:"BASE_URL" envDefault:"https://api.razorpay.com"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type PaymentConfig struct {
	Currency   string        `env:"CURRENCY" envDefault:"INR"`
	PendingTTL time.Duration `env:"PENDING_TTL" envDefault:"24h"`
	OrderLock  time.Duration `env:"ORDER_LOCK_TTL" envDefault:"30s"`
}

type NotificationConfig struct {
	Workers     int           `env:"WORKERS" envDefault:"4"`
	QueueSize   int           `env:"QUEUE_SIZE" envDefault:"256"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	Backoff     time.Duration `env:"BACKOFF" envDefault:"500ms"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type SpacesConfig struct {
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"`
	Region    string `env:"REGION"`
	Endpoint  string `env:"ENDPOINT"`
}

// Enabled reports whether receipt archiving can be wired
func (s SpacesConfig) Enabled() bool {
	return s.Bucket != "" && s.Region != "" && s.AccessKey != "" && s.SecretKey != ""
}

type KafkaConfig struct {
	Brokers     []string `env:"BROKERS" envSeparator:","`
	TopicPrefix string   `env:"TOPIC_PREFIX" envDefault:""`
}

type SMTPConfig struct {
	Host     string `env:"HOST" envDefault:"smtp.gmail.com"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"noreply@learnhub.app"`
	AppURL   string `env:"APP_URL" envDefault:"http://localhost:3000"`
}

type CronConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// SeedConfig holds the credentials of accounts created by the seed command
type SeedConfig struct {
	AdminEmail         string `env:"ADMIN_EMAIL"`
	AdminPassword      string `env:"ADMIN_PASSWORD"`
	InstructorEmail    string `env:"INSTRUCTOR_EMAIL"`
	InstructorPassword string `env:"INSTRUCTOR_PASSWORD"`
}

// Get parses the environment into a Config
func Get() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Load reads .env (outside production) and parses the environment
func Load() (*Config, error) {
	if err := LoadENV(); err != nil {
		return nil, err
	}
	return Get()
}

// IsProduction reports whether GO_ENV is production
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// Validate checks the settings the HTTP server cannot run without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}
	if c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "" {
		return errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be configured")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	return nil
}
