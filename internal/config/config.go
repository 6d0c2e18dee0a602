package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	DBDriver   string
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	SiteName   string
	SiteURL    string
	AdminEmail string
	AdminToken string

	NonceSecret    string
	IPHashSalt     string
	EncryptionKeys string

	MailHost string
	MailPort int

	HTTPTimeout time.Duration
	RateLimit   int
	RateWindow  time.Duration

	FormsFile string
	LogLevel  string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "release"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./swish-forms.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "swish_forms"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		SiteName:   getEnv("SITE_NAME", "Swishfolio"),
		SiteURL:    getEnv("SITE_URL", "http://localhost:8080"),
		AdminEmail: getEnv("ADMIN_EMAIL", ""),
		AdminToken: getEnv("ADMIN_TOKEN", ""),

		NonceSecret:    getEnv("NONCE_SECRET", ""),
		IPHashSalt:     getEnv("IP_HASH_SALT", ""),
		EncryptionKeys: getEnv("ENCRYPTION_KEYS", ""),

		MailHost: getEnv("MAIL_HOST", "localhost"),
		MailPort: getEnvInt("MAIL_PORT", 25),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		RateLimit:   getEnvInt("RATE_LIMIT", 10),
		RateWindow:  getEnvDuration("RATE_WINDOW", time.Hour),

		FormsFile: getEnv("FORMS_FILE", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}
