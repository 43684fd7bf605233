package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Voting   VotingConfig
	Worker   WorkerConfig
	Sentry   SentryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string   // comma-separated, or "*" for all
	PublicBaseURL      string   // used to build share links, e.g. https://yansimam.com
	TrustedProxies     []string // IPs or CIDRs allowed to set X-Forwarded-For; empty trusts none
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string // e.g. postgres://localhost:5432/yansimam?sslmode=disable
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the photo bucket. Photo upload is disabled when PhotosBucket is empty.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PhotosBucket    string
}

// VotingConfig holds vote submission settings.
type VotingConfig struct {
	HashSalt         string // HMAC key for voter fingerprint and IP hashes
	SubmitRatePerMin int    // per client IP; 0 disables limiting
	SessionCacheSec  int
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Inline           bool // run aggregation and expiry sweep inside the server process
	SweepIntervalSec int
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string
	Environment string
}

// Load reads configuration from environment, with optional .env file.
// It does not validate; call Validate once at startup.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			PublicBaseURL:      strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
			TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      os.Getenv("JWT_SECRET"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24*7),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "eu-central-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			PhotosBucket:    getEnv("AWS_S3_PHOTOS_BUCKET", ""),
		},
		Voting: VotingConfig{
			HashSalt:         os.Getenv("VOTER_HASH_SALT"),
			SubmitRatePerMin: getEnvInt("VOTE_RATE_PER_MIN", 20),
			SessionCacheSec:  getEnvInt("SESSION_CACHE_SEC", 30),
		},
		Worker: WorkerConfig{
			Inline:           getEnvBool("WORKER_INLINE", true),
			SweepIntervalSec: getEnvInt("EXPIRY_SWEEP_SEC", 60),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: getEnv("SENTRY_ENVIRONMENT", "production"),
		},
	}
	return cfg, nil
}

// Validate checks required settings and returns a single error listing every missing field.
func (c *Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"DATABASE_URL", c.Database.URL},
		{"REDIS_ADDR", c.Redis.Addr},
		{"JWT_SECRET", c.JWT.Secret},
		{"VOTER_HASH_SALT", c.Voting.HashSalt},
		{"PUBLIC_BASE_URL", c.Server.PublicBaseURL},
	}
	var errs []error
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.key))
		}
	}
	if c.Voting.SubmitRatePerMin < 0 {
		errs = append(errs, errors.New("VOTE_RATE_PER_MIN must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blanks. Unset yields nil.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
