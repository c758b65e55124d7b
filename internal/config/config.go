package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultTimezone = "Asia/Jakarta"

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RunMigrations         bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RecapCacheTTLSeconds  int
	ReportTimezone        string
	AuthSecret            string
	AccessTokenTTLMinutes int
	BridgeClientID        string
	BridgeSecretHash      string
	ViewerClientID        string
	ViewerSecretHash      string
	RecordMaxAttempts     int
	TokenRateLimit        string
	LogLevel              string
	LogFormat             string
}

// Load reads configuration from the environment, after merging a .env file
// when one exists.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RECAP_CACHE_TTL_SECONDS", 60)
	v.SetDefault("REPORT_TIMEZONE", DefaultTimezone)
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 720)
	v.SetDefault("BRIDGE_CLIENT_ID", "wa-bridge")
	v.SetDefault("BRIDGE_SECRET_HASH", "")
	v.SetDefault("VIEWER_CLIENT_ID", "dashboard")
	v.SetDefault("VIEWER_SECRET_HASH", "")
	v.SetDefault("RECORD_MAX_ATTEMPTS", 3)
	v.SetDefault("TOKEN_RATE_LIMIT", "5-M")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.AutomaticEnv()

	cacheTTL := v.GetInt("RECAP_CACHE_TTL_SECONDS")
	if cacheTTL < 0 {
		cacheTTL = 60
	}
	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 720
	}
	attempts := v.GetInt("RECORD_MAX_ATTEMPTS")
	if attempts < 1 {
		attempts = 3
	}

	return Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         strings.TrimSpace(v.GetString("ALLOWED_ORIGIN")),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		RunMigrations:         v.GetBool("RUN_MIGRATIONS"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		RecapCacheTTLSeconds:  cacheTTL,
		ReportTimezone:        strings.TrimSpace(v.GetString("REPORT_TIMEZONE")),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		BridgeClientID:        strings.TrimSpace(v.GetString("BRIDGE_CLIENT_ID")),
		BridgeSecretHash:      strings.TrimSpace(v.GetString("BRIDGE_SECRET_HASH")),
		ViewerClientID:        strings.TrimSpace(v.GetString("VIEWER_CLIENT_ID")),
		ViewerSecretHash:      strings.TrimSpace(v.GetString("VIEWER_SECRET_HASH")),
		RecordMaxAttempts:     attempts,
		TokenRateLimit:        strings.TrimSpace(v.GetString("TOKEN_RATE_LIMIT")),
		LogLevel:              strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogFormat:             strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) RecapCacheTTL() time.Duration {
	return time.Duration(c.RecapCacheTTLSeconds) * time.Second
}

// Location resolves the reporting timezone used to assign business dates.
func (c Config) Location() (*time.Location, error) {
	name := c.ReportTimezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
