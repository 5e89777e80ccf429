package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	FrontendURL string
	CORSOrigins []string

	MongoDBURI      string
	MongoDBPassword string
	MongoDBName     string

	JWTSecret   string
	JWTTTL      time.Duration
	CronSecret  string
	AppCurrency string

	SupabaseURL     string
	SupabaseAnonKey string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	RedisURL string

	RabbitMQURL string

	MailerSendAPIKey    string
	MailerSendFromEmail string
	MailerSendFromName  string

	PaymentProvider     string
	PaystackSecretKey   string
	PaystackBaseURL     string
	StripeSecretKey     string
	StripeWebhookSecret string

	ReservationTTL time.Duration
	SweeperEnabled bool
	SweepInterval  time.Duration

	RateLimit RateLimitConfig
}

// RateLimitConfig controls the Redis token bucket applied to the API.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
}

func LoadConfig() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorkerConfig loads the subset the ticket email worker needs.
func LoadWorkerConfig() (*Config, error) {
	cfg := fromEnv()
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required")
	}
	return cfg, nil
}

func fromEnv() *Config {
	cfg := &Config{
		Port:        getEnvWithDefault("PORT", "8080"),
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		FrontendURL: getEnvWithDefault("FRONTEND_URL", "http://localhost:3000"),

		MongoDBURI:      os.Getenv("MONGODB_URI"),
		MongoDBPassword: os.Getenv("MONGODB_PASSWORD"),
		MongoDBName:     getEnvWithDefault("MONGODB_DATABASE", "eventix"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTTTL:      getEnvDuration("JWT_TTL", 24*time.Hour),
		CronSecret:  os.Getenv("CRON_SECRET"),
		AppCurrency: strings.ToUpper(getEnvWithDefault("APP_CURRENCY", "NGN")),

		SupabaseURL:     os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey: os.Getenv("SUPABASE_URL_ANON_KEY"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),

		RedisURL:    os.Getenv("REDIS_URL"),
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),

		MailerSendAPIKey:    os.Getenv("MAILERSEND_API_KEY"),
		MailerSendFromEmail: os.Getenv("MAILERSEND_EMAIL"),
		MailerSendFromName:  getEnvWithDefault("MAILERSEND_FROM_NAME", "Eventix"),

		PaymentProvider:     strings.ToLower(getEnvWithDefault("PAYMENT_PROVIDER", "paystack")),
		PaystackSecretKey:   os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:     getEnvWithDefault("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		ReservationTTL: getEnvDuration("RESERVATION_TTL", 30*time.Minute),
		SweeperEnabled: getEnvBool("SWEEPER_ENABLED", true),
		SweepInterval:  getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),

		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			Capacity:       getEnvInt("RATE_LIMIT_CAPACITY", 60),
			RefillTokens:   getEnvInt("RATE_LIMIT_REFILL_TOKENS", 1),
			RefillInterval: getEnvDuration("RATE_LIMIT_REFILL_INTERVAL", time.Second),
			TTL:            getEnvDuration("RATE_LIMIT_TTL", 10*time.Minute),
			KeyStrategy:    getEnvWithDefault("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
			Prefix:         getEnvWithDefault("RATE_LIMIT_PREFIX", "rl"),
		},
	}
	cfg.CORSOrigins = splitList(getEnvWithDefault("CORS_ORIGINS", cfg.FrontendURL))
	return cfg
}

// Validate checks the settings the API server needs.
func (c *Config) Validate() error {
	if c.MongoDBURI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	switch c.PaymentProvider {
	case "paystack":
		if c.PaystackSecretKey == "" {
			return fmt.Errorf("PAYSTACK_SECRET_KEY is required for the paystack provider")
		}
	case "stripe":
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required for the stripe provider")
		}
	default:
		return fmt.Errorf("unsupported PAYMENT_PROVIDER %q (expected paystack or stripe)", c.PaymentProvider)
	}
	if c.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL must be positive")
	}
	if c.RateLimit.Capacity < 1 {
		c.RateLimit.Capacity = 1
	}
	if c.RateLimit.RefillTokens < 1 {
		c.RateLimit.RefillTokens = 1
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RateLimit.RefillInterval; c.RateLimit.TTL < minTTL {
		c.RateLimit.TTL = minTTL
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SupabaseEnabled reports whether OAuth sessions issued by Supabase are accepted.
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

// CloudinaryEnabled reports whether event images are uploaded to Cloudinary.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Level maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
