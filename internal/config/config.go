package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all runtime settings for the login service. Everything
// is read from environment variables (optionally via a .env file) with
// defaults matching the deployed setup.
type Config struct {
	// Server settings
	ServerAddr string
	LogLevel   string

	// Browser settings
	Headless bool
	// ChromeRemoteURL points at a remote DevTools endpoint
	// (e.g. http://chrome:9222). Empty means a locally spawned Chrome.
	ChromeRemoteURL string
	UserAgent       string

	// Login flow settings
	LoginURL    string
	IdentityURL string
	// ElementWait bounds every locate-with-wait step.
	ElementWait time.Duration
	// TokenWait bounds the wait for the at_ access token cookie.
	TokenWait time.Duration
	// PollInterval is the poll cadence for cookie and error probes.
	PollInterval time.Duration
	// SettleDelay is the short pause after navigation before locating
	// elements, matching the page's client-side rendering lag.
	SettleDelay time.Duration

	// MaxSessions caps concurrently open browser sessions for the login
	// endpoint. 0 disables the cap (the source system runs unbounded).
	MaxSessions int64

	// Registration settings
	RegisterSiteURL string
	RegisterTimeout time.Duration
	DefaultPassword string
	MailPollLimit   int
	MailPollWait    time.Duration

	// DuckMail settings
	DuckMailBaseURL string
	DuckMailDomain  string
	MailTimeout     time.Duration

	// Post-registration tobit cloud APIs
	PostRegisterURL string
	UserSettingsURL string

	// Database
	DatabasePath string
}

// Load reads configuration from the environment.
func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":5557"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		Headless:        getEnvBool("CHROME_HEADLESS", true),
		ChromeRemoteURL: getEnv("CHROME_REMOTE_URL", ""),
		UserAgent: getEnv("CHROME_USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"),

		LoginURL:     getEnv("CHAYNS_LOGIN_URL", "https://chayns.de"),
		IdentityURL:  getEnv("CHAYNS_IDENTITY_URL", "https://chayns.de/id"),
		ElementWait:  getEnvDuration("ELEMENT_WAIT", 20*time.Second),
		TokenWait:    getEnvDuration("TOKEN_WAIT", 30*time.Second),
		PollInterval: getEnvDuration("POLL_INTERVAL", 500*time.Millisecond),
		SettleDelay:  getEnvDuration("SETTLE_DELAY", 2*time.Second),

		MaxSessions: int64(getEnvInt("MAX_SESSIONS", 0)),

		RegisterSiteURL: getEnv("REGISTER_SITE_URL", "https://chayns.net/72975-29241"),
		RegisterTimeout: getEnvDuration("REGISTER_TIMEOUT", 180*time.Second),
		DefaultPassword: getEnv("REGISTER_DEFAULT_PASSWORD", "12345Abc"),
		MailPollLimit:   getEnvInt("MAIL_POLL_LIMIT", 40),
		MailPollWait:    getEnvDuration("MAIL_POLL_WAIT", 3*time.Second),

		DuckMailBaseURL: getEnv("DUCKMAIL_BASE_URL", "https://api.duckmail.sbs"),
		DuckMailDomain:  getEnv("DUCKMAIL_DOMAIN", "duckmail.sbs"),
		MailTimeout:     getEnvDuration("MAIL_TIMEOUT", 30*time.Second),

		PostRegisterURL: getEnv("POST_REGISTER_URL",
			"https://cube.tobit.cloud/chayns-ai-chatbot/intercom/cascading"),
		UserSettingsURL: getEnv("USER_SETTINGS_URL",
			"https://cube.tobit.cloud/ai-proxy/v1/userSettings/personId/%s"),

		DatabasePath: getEnv("DATABASE_PATH", "loginsvc.db"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
