// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the launch watch engine.
type Config struct {
	// Market data provider
	DexScreenerURL string
	TargetChain    string
	HTTPTimeout    time.Duration

	// Eligibility thresholds
	MinMarketCap   float64
	MaxMarketCap   float64
	MinLiquidity   float64
	MinVolume1h    float64
	MaxAgeMinutes  float64
	RequireSocials bool

	// Scheduling
	ScanInterval     time.Duration
	TrackInterval    time.Duration
	TrackConcurrency int

	// Tracking rules
	RugPriceRatio     float64
	RugLiquidityFloor float64
	GainReportFloor   float64
	GainReportStep    float64
	WinCeilingPct     float64

	// Alerting
	DiscordBotToken  string
	DiscordChannelID string
	DiscordAPIURL    string
	DiscordGateway   bool
	ReferralURL      string
	DryRun           bool

	// Journal
	JournalPath string
	DatabaseURL string

	// Metrics
	PrometheusPort int

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// Provider
		DexScreenerURL: getEnv("DEXSCREENER_URL", "https://api.dexscreener.com"),
		TargetChain:    getEnv("TARGET_CHAIN", "solana"),
		HTTPTimeout:    time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 10)) * time.Second,

		// Eligibility
		MinMarketCap:   getEnvFloat("MIN_MARKET_CAP", 20000),
		MaxMarketCap:   getEnvFloat("MAX_MARKET_CAP", 90000),
		MinLiquidity:   getEnvFloat("MIN_LIQUIDITY", 1500),
		MinVolume1h:    getEnvFloat("MIN_VOLUME_1H", 500),
		MaxAgeMinutes:  getEnvFloat("MAX_AGE_MINUTES", 60),
		RequireSocials: getEnvBool("REQUIRE_SOCIALS", true),

		// Scheduling
		ScanInterval:     time.Duration(getEnvInt("SCAN_INTERVAL_SECONDS", 10)) * time.Second,
		TrackInterval:    time.Duration(getEnvInt("TRACK_INTERVAL_SECONDS", 30)) * time.Second,
		TrackConcurrency: getEnvInt("TRACK_CONCURRENCY", 8),

		// Tracking rules
		RugPriceRatio:     getEnvFloat("RUG_PRICE_RATIO", 0.10),
		RugLiquidityFloor: getEnvFloat("RUG_LIQUIDITY_FLOOR", 500),
		GainReportFloor:   getEnvFloat("GAIN_REPORT_FLOOR", 45),
		GainReportStep:    getEnvFloat("GAIN_REPORT_STEP", 20),
		WinCeilingPct:     getEnvFloat("WIN_CEILING_PCT", 10_000_000),

		// Alerting
		DiscordBotToken:  getEnv("DISCORD_BOT_TOKEN", ""),
		DiscordChannelID: getEnv("DISCORD_CHANNEL_ID", ""),
		DiscordAPIURL:    getEnv("DISCORD_API_URL", "https://discord.com/api/v10"),
		DiscordGateway:   getEnvBool("DISCORD_GATEWAY", true),
		ReferralURL:      getEnv("REFERRAL_URL", "https://t.me/maestro?start=%s"),
		DryRun:           getEnvBool("DRY_RUN", false),

		// Journal
		JournalPath: getEnv("JOURNAL_PATH", "./data/events.jsonl"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Metrics
		PrometheusPort: getEnvInt("PROMETHEUS_PORT", 9090),

		// UI
		EnableTUI:     getEnvBool("ENABLE_TUI", false),
		UIRefreshRate: time.Duration(getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogFile:  getEnv("LOG_FILE", "./data/engine.log"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.TargetChain == "" {
		return fmt.Errorf("TARGET_CHAIN is required")
	}

	if c.DexScreenerURL == "" {
		return fmt.Errorf("DEXSCREENER_URL is required")
	}

	if c.MinMarketCap < 0 || c.MaxMarketCap < c.MinMarketCap {
		return fmt.Errorf("MIN_MARKET_CAP must be non-negative and not above MAX_MARKET_CAP")
	}

	if c.MinLiquidity < 0 || c.MinVolume1h < 0 {
		return fmt.Errorf("MIN_LIQUIDITY and MIN_VOLUME_1H must be non-negative")
	}

	if c.MaxAgeMinutes <= 0 {
		return fmt.Errorf("MAX_AGE_MINUTES must be positive")
	}

	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL_SECONDS must be positive")
	}

	if c.TrackInterval <= c.ScanInterval {
		return fmt.Errorf("TRACK_INTERVAL_SECONDS must be longer than SCAN_INTERVAL_SECONDS")
	}

	if c.TrackConcurrency < 1 {
		return fmt.Errorf("TRACK_CONCURRENCY must be at least 1")
	}

	if c.RugPriceRatio <= 0 || c.RugPriceRatio >= 1 {
		return fmt.Errorf("RUG_PRICE_RATIO must be between 0 and 1")
	}

	if c.RugLiquidityFloor < 0 || c.GainReportFloor < 0 {
		return fmt.Errorf("RUG_LIQUIDITY_FLOOR and GAIN_REPORT_FLOOR must be non-negative")
	}

	if c.GainReportStep < 0 || c.WinCeilingPct <= c.GainReportFloor {
		return fmt.Errorf("GAIN_REPORT_STEP must be non-negative and WIN_CEILING_PCT above GAIN_REPORT_FLOOR")
	}

	if !c.DryRun {
		if c.DiscordBotToken == "" {
			return fmt.Errorf("DISCORD_BOT_TOKEN is required unless DRY_RUN is set")
		}
		if c.DiscordChannelID == "" {
			return fmt.Errorf("DISCORD_CHANNEL_ID is required unless DRY_RUN is set")
		}
	}

	if c.PrometheusPort < 0 || c.PrometheusPort > 65535 {
		return fmt.Errorf("PROMETHEUS_PORT must be between 0 and 65535")
	}

	return nil
}

// MaskedBotToken returns the Discord token with most characters hidden for logging.
func (c *Config) MaskedBotToken() string {
	return maskSecret(c.DiscordBotToken)
}

// MaskedDatabaseURL returns the database DSN with most characters hidden for logging.
func (c *Config) MaskedDatabaseURL() string {
	return maskSecret(c.DatabaseURL)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
