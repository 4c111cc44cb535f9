package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL      string
	Port             string
	JWTSecret        string
	OTPSalt          string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	MatchThreshold   int
	ProvisionTimeout time.Duration
	RetryInterval    time.Duration
	DevMode          bool
}

// Load reads configuration from environment variables. DATABASE_URL may be
// empty only in dev mode, where the in-memory stores are used instead.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             "8080",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  30 * 24 * time.Hour,
		MatchThreshold:   2,
		ProvisionTimeout: 5 * time.Second,
		RetryInterval:    30 * time.Second,
	}

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && !cfg.DevMode {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.OTPSalt = os.Getenv("OTP_SALT")
	if cfg.OTPSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}

	var err error
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL); err != nil {
		return nil, err
	}
	if cfg.ProvisionTimeout, err = durationEnv("PROVISION_TIMEOUT", cfg.ProvisionTimeout); err != nil {
		return nil, err
	}
	if cfg.RetryInterval, err = durationEnv("PROVISION_RETRY_INTERVAL", cfg.RetryInterval); err != nil {
		return nil, err
	}

	if raw := os.Getenv("MATCH_THRESHOLD"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 {
			return nil, fmt.Errorf("MATCH_THRESHOLD must be an integer >= 2, got %q", raw)
		}
		cfg.MatchThreshold = n
	}

	return cfg, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 15m or 720h, got %q", name, raw)
	}
	return d, nil
}
