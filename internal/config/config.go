package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Env      string `env:"IG_ENV,required"`
	HTTPAddr string `env:"IG_HTTP_ADDR" envDefault:":8080"`
	BaseURL  string `env:"IG_BASE_URL,required"`

	DBDSN      string `env:"IG_DB_DSN,required"`
	DBMaxConns int32  `env:"IG_DB_MAX_CONNS" envDefault:"25"`
	JWTSecret  string `env:"IG_JWT_SECRET,required"`

	LogLevel string `env:"IG_LOG_LEVEL" envDefault:"info"`

	CORSAllowedOrigins []string `env:"IG_CORS_ALLOWED_ORIGINS" envSeparator:","`

	InviteExpiryHours  int `env:"IG_INVITE_EXPIRY_HOURS" envDefault:"72"`
	TokenBcryptCost    int `env:"IG_TOKEN_BCRYPT_COST" envDefault:"10"`
	PasswordBcryptCost int `env:"IG_PASSWORD_BCRYPT_COST" envDefault:"12"`

	MailRelayURL   string `env:"IG_MAIL_RELAY_URL"`
	MailRelayToken string `env:"IG_MAIL_RELAY_TOKEN"`
	MailFrom       string `env:"IG_MAIL_FROM" envDefault:"no-reply@inviteguard.local"`
	MailTimeoutMS  int    `env:"IG_MAIL_TIMEOUT_MS" envDefault:"5000"`

	AcceptRateLimitRPM int `env:"IG_ACCEPT_RATE_LIMIT_RPM" envDefault:"10"`

	ExpirySweepSchedule string `env:"IG_EXPIRY_SWEEP_SCHEDULE" envDefault:"*/15 * * * *"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.Env = strings.TrimSpace(cfg.Env)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.DBDSN = strings.TrimSpace(cfg.DBDSN)
	cfg.MailRelayURL = strings.TrimSpace(cfg.MailRelayURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces value ranges and cross-field rules.
func (c *Config) Validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("IG_ENV must be one of: dev, prod (got: %s)", c.Env)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("IG_BASE_URL is required")
	}
	if c.DBDSN == "" {
		return fmt.Errorf("IG_DB_DSN is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("IG_JWT_SECRET is required")
	}
	if c.Env == "prod" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("IG_JWT_SECRET must be at least 32 characters (currently %d)", len(c.JWTSecret))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("IG_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	if c.DBMaxConns <= 0 {
		return fmt.Errorf("IG_DB_MAX_CONNS must be positive (got: %d)", c.DBMaxConns)
	}
	if c.InviteExpiryHours <= 0 || c.InviteExpiryHours > 24*30 {
		return fmt.Errorf("IG_INVITE_EXPIRY_HOURS must be between 1 and 720 (got: %d)", c.InviteExpiryHours)
	}
	if c.TokenBcryptCost < 10 || c.TokenBcryptCost > 31 {
		return fmt.Errorf("IG_TOKEN_BCRYPT_COST must be between 10 and 31 (got: %d)", c.TokenBcryptCost)
	}
	if c.PasswordBcryptCost < 10 || c.PasswordBcryptCost > 31 {
		return fmt.Errorf("IG_PASSWORD_BCRYPT_COST must be between 10 and 31 (got: %d)", c.PasswordBcryptCost)
	}
	if c.MailTimeoutMS <= 0 || c.MailTimeoutMS > 30000 {
		return fmt.Errorf("IG_MAIL_TIMEOUT_MS must be between 1 and 30000 (got: %d)", c.MailTimeoutMS)
	}
	if c.AcceptRateLimitRPM <= 0 {
		return fmt.Errorf("IG_ACCEPT_RATE_LIMIT_RPM must be positive (got: %d)", c.AcceptRateLimitRPM)
	}
	if c.Env == "prod" && c.MailRelayURL == "" {
		return fmt.Errorf("IG_MAIL_RELAY_URL is required in prod")
	}
	if strings.TrimSpace(c.ExpirySweepSchedule) == "" {
		return fmt.Errorf("IG_EXPIRY_SWEEP_SCHEDULE must not be empty")
	}
	return nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// AllowedOrigins returns the CORS origins, defaulting to the base URL.
func (c *Config) AllowedOrigins() []string {
	if len(c.CORSAllowedOrigins) > 0 {
		return c.CORSAllowedOrigins
	}
	return []string{c.BaseURL}
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	relayToken := ""
	if c.MailRelayToken != "" {
		relayToken = "[REDACTED]"
	}

	return map[string]string{
		"IG_ENV":                   c.Env,
		"IG_HTTP_ADDR":             c.HTTPAddr,
		"IG_BASE_URL":              c.BaseURL,
		"IG_DB_DSN":                redactDSN(c.DBDSN),
		"IG_DB_MAX_CONNS":          strconv.Itoa(int(c.DBMaxConns)),
		"IG_JWT_SECRET":            "[REDACTED]",
		"IG_LOG_LEVEL":             c.LogLevel,
		"IG_CORS_ALLOWED_ORIGINS":  strings.Join(c.AllowedOrigins(), ","),
		"IG_INVITE_EXPIRY_HOURS":   strconv.Itoa(c.InviteExpiryHours),
		"IG_TOKEN_BCRYPT_COST":     strconv.Itoa(c.TokenBcryptCost),
		"IG_PASSWORD_BCRYPT_COST":  strconv.Itoa(c.PasswordBcryptCost),
		"IG_MAIL_RELAY_URL":        c.MailRelayURL,
		"IG_MAIL_RELAY_TOKEN":      relayToken,
		"IG_MAIL_FROM":             c.MailFrom,
		"IG_MAIL_TIMEOUT_MS":       strconv.Itoa(c.MailTimeoutMS),
		"IG_ACCEPT_RATE_LIMIT_RPM": strconv.Itoa(c.AcceptRateLimitRPM),
		"IG_EXPIRY_SWEEP_SCHEDULE": c.ExpirySweepSchedule,
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
