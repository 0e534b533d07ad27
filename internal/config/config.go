package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	JWT       JWTConfig
	Mail      MailConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
	Reset     ResetConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	BodyLimitMB    int
}

type DBConfig struct {
	URL string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type MailConfig struct {
	APIKey      string
	APISecret   string
	SenderEmail string
	SenderName  string
	Timeout     time.Duration
	QueueSize   int
}

type StorageConfig struct {
	Endpoint  string
	PublicURL string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RateLimitConfig struct {
	Max           int
	Window        time.Duration
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
}

type AdminConfig struct {
	Email    string
	Password string
}

type ResetConfig struct {
	TokenTTL    time.Duration
	LinkBaseURL string
}

// Load reads the process environment. A .env file in the working directory,
// when present, fills variables that are not already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "5000"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
			BodyLimitMB:    getEnvAsInt("BODY_LIMIT_MB", 10),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 720),
		},
		Mail: MailConfig{
			APIKey:      getEnv("MAILJET_API_KEY", ""),
			APISecret:   getEnv("MAILJET_API_SECRET", ""),
			SenderEmail: getEnv("MAIL_SENDER_EMAIL", ""),
			SenderName:  getEnv("MAIL_SENDER_NAME", "Book Talk"),
			Timeout:     getEnvAsDuration("MAIL_TIMEOUT", 10*time.Second),
			QueueSize:   getEnvAsInt("MAIL_QUEUE_SIZE", 100),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicURL: getEnv("MINIO_PUBLIC_URL", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "booktalk"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "booktalk_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "booktalk"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		RateLimit: RateLimitConfig{
			Max:           getEnvAsInt("RATE_LIMIT_MAX", 100),
			Window:        getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisPrefix:   getEnv("RATE_LIMIT_PREFIX", "booktalk:ratelimit"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Reset: ResetConfig{
			TokenTTL:    getEnvAsDuration("PASSWORD_RESET_TTL", time.Hour),
			LinkBaseURL: getEnv("PASSWORD_RESET_URL", "http://localhost:3000/reset-password"),
		},
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DB.URL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.RateLimit.Max < 1 || c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimit.Window < time.Millisecond {
		return errors.New("RATE_LIMIT_WINDOW must be at least 1ms")
	}
	return nil
}

// MailEnabled reports whether provider credentials are configured.
func (c *Config) MailEnabled() bool {
	return c.Mail.APIKey != "" && c.Mail.APISecret != "" && c.Mail.SenderEmail != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
