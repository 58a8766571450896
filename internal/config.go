package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	LogLevel    string
	Port        uint16
	DatabaseUrl string
	BaseURL     string

	// Advanced unlocks the configurable checkout surface: custom line item
	// construction, per-method options, automatic tax, fee recovery. When
	// false, hosted checkout uses a fixed baseline configuration.
	Advanced bool

	// SeedFormsPath points to a JSON file of payment forms loaded into the
	// store at startup. Empty to skip seeding.
	SeedFormsPath string

	Stripe    StripeConfig
	Captcha   CaptchaConfig
	RateLimit RateLimitConfig
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
}

// CaptchaConfig selects the CAPTCHA provider gating payment creation.
// Provider is one of "", "recaptcha", "hcaptcha", "turnstile".
type CaptchaConfig struct {
	Provider       string
	SecretKey      string
	ScoreThreshold float64
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int

	// ExemptHeader/ExemptToken let operator tooling bypass the limiter.
	// Empty token disables the exemption.
	ExemptHeader string
	ExemptToken  string
}

func NewConfig() (*Config, error) {
	// Try to load .env from current directory, then walk up to find it (max 2 levels)
	err := godotenv.Load()
	if err != nil {
		// Walk up directories to find .env (max 2 parent directories)
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Warn("Warning: .env file not found, using environment variables and defaults")
		}
	}

	cfg := &Config{
		Env:           getEnv("ENV", "dev"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Port:          getEnvInt("PORT", 3000),
		DatabaseUrl:   getEnv("DATABASE_URL", ""),
		BaseURL:       getEnv("BASE_URL", "http://localhost:3000"),
		Advanced:      getEnvBool("PAYFORM_ADVANCED", true),
		SeedFormsPath: getEnv("PAYFORM_SEED_FORMS", ""),
		Stripe: StripeConfig{
			SecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			PublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
		},
		Captcha: CaptchaConfig{
			Provider:       getEnv("CAPTCHA_PROVIDER", ""),
			SecretKey:      getEnv("CAPTCHA_SECRET_KEY", ""),
			ScoreThreshold: getEnvFloat("CAPTCHA_SCORE_THRESHOLD", 0.5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 1),
			BurstSize:         int(getEnvInt("RATE_LIMIT_BURST", 5)),
			ExemptHeader:      getEnv("RATE_LIMIT_EXEMPT_HEADER", ""),
			ExemptToken:       getEnv("RATE_LIMIT_EXEMPT_TOKEN", ""),
		},
	}

	// Validate env
	validEnv := cfg.Env == "dev" || cfg.Env == "prod"
	if !validEnv {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	// Validate log level
	validLevel := cfg.LogLevel == "info" || cfg.LogLevel == "debug" || cfg.LogLevel == "warn" || cfg.LogLevel == "error"
	if !validLevel {
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if cfg.Stripe.SecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY must be set")
	}
	if cfg.Captcha.Provider != "" && cfg.Captcha.SecretKey == "" {
		return nil, fmt.Errorf("CAPTCHA_SECRET_KEY must be set when CAPTCHA_PROVIDER is configured")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue uint16) uint16 {
	if value := os.Getenv(key); value != "" {
		var intValue uint16
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var floatValue float64
		if _, err := fmt.Sscanf(value, "%f", &floatValue); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
