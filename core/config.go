package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime settings for the storefront API process.
type Config struct {
	Port           string        // HTTP listen port (e.g., "3000")
	SessionKey     string        // Cookie signing/encryption key
	CookieSecure   bool          // Whether to set Secure flag on session cookie
	CookieSameSite string        // SameSite policy: Strict/Lax/None
	LogDir         string        // Directory to write application logs
	RedisURL       string        // Redis URL (redis://host:port/db) backing the persistence port
	DatabaseURL    string        // PostgreSQL DSN for the order archive (empty disables archiving)
	CatalogURL     string        // Remote product catalog base URL
	SessionTTL     time.Duration // Fixed token lifetime
	UsersFile      string        // YAML credential directory (empty -> built-in demo users)
	AllowedOrigins []string      // allowed origins for CORS/CSRF origin check
}

// Load populates Config from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:           firstNonEmpty(os.Getenv("PORT"), "3000"),
		SessionKey:     firstNonEmpty(os.Getenv("SESSION_KEY"), "change-this-session-key"),
		CookieSecure:   boolFromEnv("COOKIE_SECURE", false),
		CookieSameSite: firstNonEmpty(os.Getenv("COOKIE_SAMESITE"), "Strict"),
		LogDir:         firstNonEmpty(os.Getenv("LOG_DIR"), "/var/log/tuhogar"),
		RedisURL:       firstNonEmpty(os.Getenv("REDIS_URL"), "redis://localhost:6379/0"),
		DatabaseURL:    firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_URL")),
		CatalogURL:     firstNonEmpty(os.Getenv("CATALOG_URL"), "http://localhost:4000"),
		SessionTTL:     durationFromEnv("SESSION_TTL", DefaultSessionTTL),
		UsersFile:      os.Getenv("USERS_FILE"),
		AllowedOrigins: parseCSV(os.Getenv("ALLOWED_ORIGINS")),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// boolFromEnv reads a boolean from env var name, falling back to defaultVal when empty or invalid.
func boolFromEnv(name string, defaultVal bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// durationFromEnv reads a duration ("30m", "2h") from env var name, falling back when empty or invalid.
func durationFromEnv(name string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

// parseCSV splits comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
