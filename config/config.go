package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingConfig is wrapped by Load when required variables are unset.
var ErrMissingConfig = errors.New("missing required configuration")

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Outreach OutreachConfig
	JWT      JWTConfig
	AWS      AWSConfig
}

// ServerConfig holds admin HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/onboarding?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GatewayConfig holds the messaging relay connection and community targets.
type GatewayConfig struct {
	URL            string
	Token          string
	CommunityID    string
	AdminChannelID string
}

// OutreachConfig holds the onboarding policy knobs.
type OutreachConfig struct {
	SweepInterval time.Duration
	BatchSize     int
	MaxAttempts   int
	Cooldown      time.Duration
	ReplyTimeout  time.Duration
	DispatchDelay time.Duration
	StrictNames   bool
}

// JWTConfig holds admin API token settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the roster export bucket. Empty bucket disables export.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ExportsBucket        string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
// Missing required values produce an error wrapping ErrMissingConfig.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cooldownDays, err := getEnvFloat("OUTREACH_COOLDOWN_DAYS", 1)
	if err != nil {
		return nil, err
	}
	if cooldownDays < 0 {
		return nil, fmt.Errorf("OUTREACH_COOLDOWN_DAYS must not be negative")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT_SEC", 30),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "onboarding"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			URL:            getEnv("GATEWAY_URL", "ws://localhost:8090/gateway"),
			Token:          getEnv("GATEWAY_TOKEN", ""),
			CommunityID:    getEnv("COMMUNITY_ID", ""),
			AdminChannelID: getEnv("ADMIN_CHANNEL_ID", ""),
		},
		Outreach: OutreachConfig{
			SweepInterval: time.Duration(getEnvInt("OUTREACH_SWEEP_INTERVAL_MIN", 240)) * time.Minute,
			BatchSize:     getEnvInt("OUTREACH_BATCH_SIZE", 10),
			MaxAttempts:   getEnvInt("OUTREACH_MAX_ATTEMPTS", 3),
			Cooldown:      time.Duration(cooldownDays * float64(24*time.Hour)),
			ReplyTimeout:  time.Duration(getEnvInt("OUTREACH_REPLY_TIMEOUT_SEC", 120)) * time.Second,
			DispatchDelay: time.Duration(getEnvInt("OUTREACH_DISPATCH_DELAY_MS", 1000)) * time.Millisecond,
			StrictNames:   getEnvBool("OUTREACH_STRICT_NAMES", false),
		},
		JWT: JWTConfig{
			Secret:      getEnv("ADMIN_JWT_SECRET", ""),
			ExpireHours: getEnvInt("ADMIN_JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ExportsBucket:        getEnv("AWS_S3_EXPORTS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}

	var missing []string
	for key, val := range map[string]string{
		"GATEWAY_TOKEN":    cfg.Gateway.Token,
		"COMMUNITY_ID":     cfg.Gateway.CommunityID,
		"ADMIN_CHANNEL_ID": cfg.Gateway.AdminChannelID,
		"ADMIN_JWT_SECRET": cfg.JWT.Secret,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	if cfg.Outreach.BatchSize <= 0 || cfg.Outreach.MaxAttempts <= 0 {
		return nil, fmt.Errorf("OUTREACH_BATCH_SIZE and OUTREACH_MAX_ATTEMPTS must be positive")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
