package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	MongoURI       string
	PostgresURI    string
	RedisURI       string
	EncryptionKey  string // base64, 32 bytes; encrypts stored card numbers
	Port           string
	FrontendURL    string
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)
	Host           string
	Environment    string // ENV: production, development, etc.

	Visa     VisaConfig
	Logging  LoggingConfig
	Reminder ReminderConfig
	Spending SpendingConfig
}

// VisaConfig holds the sandbox credentials and mutual-TLS material for the
// transaction controls API.
type VisaConfig struct {
	BaseURL      string
	UserID       string
	Password     string
	CertPath     string
	KeyPath      string
	CAPath       string
	APIKey       string
	SharedSecret string
	CallTimeout  time.Duration
	MaxAttempts  int
	DiscoveryTTL time.Duration // how long available control types are cached
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

// ReminderConfig tunes the reminder dispatch entry point.
type ReminderConfig struct {
	LockTTL     time.Duration
	BatchSize   int
	DefaultDays []int
}

// SpendingConfig sets the demo monthly budget used by the spending status
// endpoint.
type SpendingConfig struct {
	MonthlyBudget string
	AlertRatio    string
}

const (
	defaultVisaBaseURL     = "https://sandbox.api.visa.com"
	defaultVisaCallTimeout = 10 * time.Second
	defaultVisaAttempts    = 3
	defaultDiscoveryTTL    = 6 * time.Hour
	defaultReminderLockTTL = 2 * time.Minute
	defaultReminderBatch   = 500
)

// Load reads configuration from the process environment.
func Load() *Config {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds the config from an arbitrary lookup function. The CLI
// passes a viper-backed lookup so a config file can sit under the env.
func LoadFrom(lookup func(string) string) *Config {
	get := func(key, defaultValue string) string {
		if value := lookup(key); value != "" {
			return value
		}
		return defaultValue
	}

	env := strings.ToLower(strings.TrimSpace(get("ENV", "development")))
	host := get("HOST", "http://localhost:8080")

	allowedOrigins := parseOrigins(get("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{get("FRONTEND_URL", "http://localhost:3000"), get("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return &Config{
		MongoURI:       get("MONGODB_URI", get("MONGO_URI", "mongodb://localhost:27017/viego")),
		PostgresURI:    get("POSTGRES_URI", "postgres://localhost:5432/viego?sslmode=disable"),
		RedisURI:       get("REDIS_URI", "redis://localhost:6379/0"),
		EncryptionKey:  get("ENCRYPTION_KEY", ""),
		Host:           host,
		Environment:    env,
		Port:           get("PORT", "8080"),
		FrontendURL:    get("FRONTEND_URL", "http://localhost:3000"),
		AllowedOrigins: allowedOrigins,
		Visa: VisaConfig{
			BaseURL:      strings.TrimRight(get("VISA_BASE_URL", defaultVisaBaseURL), "/"),
			UserID:       get("VISA_USER_ID", ""),
			Password:     get("VISA_PASSWORD", ""),
			CertPath:     get("VISA_CERT_PATH", ""),
			KeyPath:      get("VISA_KEY_PATH", ""),
			CAPath:       get("VISA_CA_PATH", ""),
			APIKey:       get("VISA_API_KEY", ""),
			SharedSecret: get("VISA_SHARED_SECRET", ""),
			CallTimeout:  parseDuration(get("VISA_CALL_TIMEOUT", ""), defaultVisaCallTimeout),
			MaxAttempts:  parseInt(get("VISA_MAX_ATTEMPTS", ""), defaultVisaAttempts),
			DiscoveryTTL: parseDuration(get("VISA_DISCOVERY_TTL", ""), defaultDiscoveryTTL),
		},
		Logging: LoggingConfig{
			Level:         get("LOG_LEVEL", "info"),
			Format:        get("LOG_FORMAT", "text"),
			IncludeCaller: parseBool(get("LOG_INCLUDE_CALLER", ""), false),
		},
		Reminder: ReminderConfig{
			LockTTL:     parseDuration(get("REMINDER_LOCK_TTL", ""), defaultReminderLockTTL),
			BatchSize:   parseInt(get("REMINDER_BATCH_SIZE", ""), defaultReminderBatch),
			DefaultDays: parseDays(get("REMINDER_DAYS", "7,3,1")),
		},
		Spending: SpendingConfig{
			MonthlyBudget: get("SPENDING_MONTHLY_BUDGET", "500"),
			AlertRatio:    get("SPENDING_ALERT_RATIO", "0.8"),
		},
	}
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

// Validate reports configuration that would make the server unusable.
// Vendor credentials are checked separately when the transport is built.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q: %w", c.Port, err)
	}
	if c.Visa.CallTimeout <= 0 {
		return fmt.Errorf("VISA_CALL_TIMEOUT must be positive")
	}
	if c.Visa.MaxAttempts < 1 {
		return fmt.Errorf("VISA_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDays(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}

func parseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return fallback
}
