package main

import (
	"os"
	"strconv"
	"time"
)

// config is the process configuration, read from the environment (and .env).
type config struct {
	Port            string
	DBPath          string
	LogLevel        string
	LogFormat       string // "json" (default) or "console"
	TokensFile      string
	ResolveDelay    time.Duration
	DefaultAttempts int

	JWTSecret    string
	JWTExpiry    time.Duration
	CookieName   string
	ClientOrigin string
	Production   bool
	DailySalt    string
}

func loadConfig() config {
	return config{
		Port:            getEnv("PORT", "5175"),
		DBPath:          getEnv("DB_PATH", "./data/pairs.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		TokensFile:      os.Getenv("TOKENS_FILE"),
		ResolveDelay:    time.Duration(envInt("RESOLVE_DELAY_MS", 500)) * time.Millisecond,
		DefaultAttempts: envInt("DEFAULT_ATTEMPTS", 0),
		JWTSecret:       getEnv("JWT_SECRET", "dev_secret_change_me"),
		JWTExpiry:       time.Duration(envInt("JWT_EXPIRES_DAYS", 14)) * 24 * time.Hour,
		CookieName:      getEnv("COOKIE_NAME", "pairs_token"),
		ClientOrigin:    getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		Production:      os.Getenv("NODE_ENV") == "production",
		DailySalt:       getEnv("DAILY_SALT", "local_dev_salt"),
	}
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// envInt parses k as an int, falling back to def when unset or malformed.
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
