package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort string

	PaystackSecretKey string
	PaystackBaseURL   string
	CallbackURL       string

	BundleAPIBaseURL string
	BundleAPIKey     string
	SMMAPIBaseURL    string
	SMMAPIKey        string

	SessionTTL time.Duration
}

// New loads and validates configuration from environment variables.
// The Paystack secret is required even in development: without it the
// webhook signature check cannot run and every event would be dropped.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:  os.Getenv("SIKA_POSTGRES_USER"),
		DBPass:  os.Getenv("SIKA_POSTGRES_PASSWORD"),
		DBHost:  os.Getenv("SIKA_POSTGRES_HOST"),
		DBPort:  os.Getenv("SIKA_POSTGRES_PORT"),
		DBName:  os.Getenv("SIKA_POSTGRES_DB"),
		SSLMode: os.Getenv("SIKA_POSTGRES_SSLMODE"),

		RedisHost: os.Getenv("SIKA_REDIS_HOST"),
		RedisPort: os.Getenv("SIKA_REDIS_PORT"),

		NatsHost: os.Getenv("SIKA_NATS_HOST"),
		NatsPort: os.Getenv("SIKA_NATS_PORT"),

		ApiPort: os.Getenv("SIKA_API_PORT"),

		PaystackSecretKey: os.Getenv("SIKA_PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:   os.Getenv("SIKA_PAYSTACK_BASE_URL"),
		CallbackURL:       os.Getenv("SIKA_CALLBACK_URL"),

		BundleAPIBaseURL: os.Getenv("SIKA_BUNDLE_API_BASE_URL"),
		BundleAPIKey:     os.Getenv("SIKA_BUNDLE_API_KEY"),
		SMMAPIBaseURL:    os.Getenv("SIKA_SMM_API_BASE_URL"),
		SMMAPIKey:        os.Getenv("SIKA_SMM_API_KEY"),

		SessionTTL: getEnvMinutes("SIKA_SESSION_TTL_MINUTES", 30),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: SIKA_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis (sessions + reconcile locks)
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: SIKA_REDIS_HOST/PORT")
	}

	// Required: nats (receipt bus)
	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats: SIKA_NATS_HOST/PORT")
	}

	// Required: payment gateway
	if cfg.PaystackSecretKey == "" {
		return nil, fmt.Errorf("missing required env: SIKA_PAYSTACK_SECRET_KEY")
	}
	if cfg.PaystackBaseURL == "" {
		cfg.PaystackBaseURL = "https://api.paystack.co"
	}

	// Required: reseller endpoints
	if cfg.BundleAPIBaseURL == "" || cfg.SMMAPIBaseURL == "" {
		return nil, fmt.Errorf("missing required env: SIKA_BUNDLE_API_BASE_URL / SIKA_SMM_API_BASE_URL")
	}

	if cfg.ApiPort == "" {
		cfg.ApiPort = "8080"
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

func getEnvMinutes(key string, defaultMinutes int) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return time.Duration(defaultMinutes) * time.Minute
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return time.Duration(defaultMinutes) * time.Minute
	}
	return time.Duration(n) * time.Minute
}
