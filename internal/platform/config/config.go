package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Tenant names the two data centers the directory operates.
const (
	PrimaryTenantName   = "us"
	SecondaryTenantName = "cn"
)

// secondaryEnvironments lists the deployment tags for which the secondary
// data center exists. Anything else runs primary-only.
var secondaryEnvironments = []string{"qa1", "qa4", "prod"}

// Directory holds connectivity for the upstream identity directory.
type Directory struct {
	PrimaryAPIDomain   string
	SecondaryAPIDomain string
	APIKey             string
	UserKey            string
	Secret             string
	Timeout            time.Duration
}

// Registration holds the lite-registration pipeline settings.
type Registration struct {
	RequestLimit           int
	EmailValidationEnabled bool
	// PasswordSetupURL contains {clientId} and {uid} placeholders.
	PasswordSetupURL string
	Concurrency      int
}

// Kafka holds notification publisher settings. Empty brokers disables Kafka.
type Kafka struct {
	Brokers string
}

// Redis holds verification-key cache settings. Empty URL disables Redis.
type Redis struct {
	URL    string
	KeyTTL time.Duration
}

// Config is the full process configuration assembled from the environment.
type Config struct {
	Addr        string
	Environment string
	Directory   Directory
	Reg         Registration
	Kafka       Kafka
	Redis       Redis
	PostgresURL string
	WorkerCount int
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:        getEnv("CDCAM_ADDR", ":8080"),
		Environment: getEnv("CDCAM_ENV", "dev"),
		Directory: Directory{
			PrimaryAPIDomain:   getEnv("CDC_MAIN_API_DOMAIN", "us1.gigya.com"),
			SecondaryAPIDomain: getEnv("CDC_SECONDARY_API_DOMAIN", "cn1.sapcdm.cn"),
			APIKey:             os.Getenv("CDC_API_KEY"),
			UserKey:            os.Getenv("CDC_USER_KEY"),
			Secret:             os.Getenv("CDC_SECRET"),
			Timeout:            getDuration("CDC_TIMEOUT", 10*time.Second),
		},
		Reg: Registration{
			RequestLimit:           getInt("EEC_REQUEST_LIMIT", 1000),
			EmailValidationEnabled: getEnv("EMAIL_VALIDATION_ENABLED", "true") == "true",
			PasswordSetupURL:       getEnv("PASSWORD_SETUP_URL", "https://www.example.com/password-setup?client_id={clientId}&uid={uid}"),
			Concurrency:            getInt("EEC_CONCURRENCY", 1),
		},
		Kafka:       Kafka{Brokers: os.Getenv("KAFKA_BROKERS")},
		Redis:       Redis{URL: os.Getenv("REDIS_URL"), KeyTTL: getDuration("JWT_KEY_CACHE_TTL", time.Hour)},
		PostgresURL: os.Getenv("POSTGRES_URL"),
		WorkerCount: getInt("LIFECYCLE_WORKERS", 4),
	}
}

// SecondarySupported reports whether the configured environment runs a
// secondary data center.
func (c Config) SecondarySupported() bool {
	env := strings.ToLower(c.Environment)
	for _, tag := range secondaryEnvironments {
		if strings.Contains(env, tag) {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
