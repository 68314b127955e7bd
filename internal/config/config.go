package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	// Mail relay settings for transactional email delivery.
	MailRelayURL  string
	MailFrom      string
	MailTimeoutMS int

	LoginRateRPM   int
	RedeemRateRPM  int
	SessionDays    int
	SignInLinkTTLH int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("WC_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("WC_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("WC_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("WC_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("WC_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("WC_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("WC_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("WC_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("WC_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("WC_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("WC_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("WC_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("WC_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	cfg.MailRelayURL = strings.TrimSpace(os.Getenv("WC_MAIL_RELAY_URL"))
	if cfg.MailRelayURL == "" {
		return nil, fmt.Errorf("WC_MAIL_RELAY_URL is required")
	}

	cfg.MailFrom = getEnvOrDefault("WC_MAIL_FROM", "no-reply@wildcommand.com")

	var err error
	cfg.MailTimeoutMS, err = getEnvIntOrDefault("WC_MAIL_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	if cfg.MailTimeoutMS <= 0 || cfg.MailTimeoutMS > 30000 {
		return nil, fmt.Errorf("WC_MAIL_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.MailTimeoutMS)
	}

	cfg.LoginRateRPM, err = getEnvIntOrDefault("WC_LOGIN_RATE_RPM", 10)
	if err != nil {
		return nil, err
	}

	cfg.RedeemRateRPM, err = getEnvIntOrDefault("WC_REDEEM_RATE_RPM", 10)
	if err != nil {
		return nil, err
	}

	cfg.SessionDays, err = getEnvIntOrDefault("WC_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg.SignInLinkTTLH, err = getEnvIntOrDefault("WC_SIGNIN_LINK_TTL_HOURS", 72)
	if err != nil {
		return nil, err
	}
	if cfg.SignInLinkTTLH <= 0 {
		return nil, fmt.Errorf("WC_SIGNIN_LINK_TTL_HOURS must be positive (got: %d)", cfg.SignInLinkTTLH)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"WC_ENV":                   c.Env,
		"WC_HTTP_ADDR":             c.HTTPAddr,
		"WC_BASE_URL":              c.BaseURL,
		"WC_DB_DSN":                redactDSN(c.DBDSN),
		"WC_JWT_SECRET":            "[REDACTED]",
		"WC_LOG_LEVEL":             c.LogLevel,
		"WC_MAIL_RELAY_URL":        redactDSN(c.MailRelayURL),
		"WC_MAIL_FROM":             c.MailFrom,
		"WC_MAIL_TIMEOUT_MS":       fmt.Sprintf("%d", c.MailTimeoutMS),
		"WC_LOGIN_RATE_RPM":        fmt.Sprintf("%d", c.LoginRateRPM),
		"WC_REDEEM_RATE_RPM":       fmt.Sprintf("%d", c.RedeemRateRPM),
		"WC_SESSION_DAYS":          fmt.Sprintf("%d", c.SessionDays),
		"WC_SIGNIN_LINK_TTL_HOURS": fmt.Sprintf("%d", c.SignInLinkTTLH),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
