package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	BaseURL  string `validate:"required,url"` // Required: auth service base URL (default: http://localhost:8080)
	ClientID string `validate:"required"`     // OAuth2 public client id (default: labsession-cli)

	// Optional: path to the SQLite file the session is persisted to. Empty
	// keeps the session in memory for the life of the process.
	DatabaseFile string

	IdleTime               time.Duration `validate:"min=0"`                   // Idle logout after this long without activity; 0 disables (default: 15m)
	WarningTime            time.Duration `validate:"min=0"`                   // Warning lead time before idle logout (default: 1m)
	RequestTimeout         time.Duration `validate:"gt=0"`                    // Per-request HTTP timeout (default: 30s)
	RefreshTimeout         time.Duration `validate:"gt=0"`                    // Bound on a single credential refresh (default: 15s)
	RefreshSkew            time.Duration `validate:"min=0"`                   // Refresh this long before expiry (default: 30s)
	LoginAttemptsPerMinute int           `validate:"min=0"`                   // Local login throttle; 0 disables (default: 5)
	MetricsAddr            string        `validate:"omitempty,hostname_port"` // Optional: serve /metrics here

	Env       string `validate:"oneof=dev staging prod"`              // Environment (default: dev)
	LogLevel  string `validate:"oneof=debug info warn warning error"` // Log level (default: info)
	LogFormat string `validate:"oneof=json text"`                     // Log format (default: text)

	DevAuthPort                 int           `validate:"min=1,max=65535"` // dev-server port (default: 8080)
	DevAuthAccessTTL            time.Duration `validate:"gt=0"`            // dev-server access token lifetime (default: 5m)
	DevAuthInlinePrincipal      bool          // dev-server returns the principal with tokens (default: false)
	DevAuthHousekeepingInterval time.Duration `validate:"gt=0"` // (default: 10m)
	ShutdownGracePeriod         time.Duration `validate:"gt=0"` // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		BaseURL:                getEnvOrDefault("LABSESSION_BASE_URL", "http://localhost:8080"),
		ClientID:               getEnvOrDefault("LABSESSION_CLIENT_ID", "labsession-cli"),
		DatabaseFile:           os.Getenv("LABSESSION_DATABASE_FILE"),
		IdleTime:               getEnvDurationOrDefault("LABSESSION_IDLE_TIME", 15*time.Minute),
		WarningTime:            getEnvDurationOrDefault("LABSESSION_WARNING_TIME", time.Minute),
		RequestTimeout:         getEnvDurationOrDefault("LABSESSION_REQUEST_TIMEOUT", 30*time.Second),
		RefreshTimeout:         getEnvDurationOrDefault("LABSESSION_REFRESH_TIMEOUT", 15*time.Second),
		RefreshSkew:            getEnvDurationOrDefault("LABSESSION_REFRESH_SKEW", 30*time.Second),
		LoginAttemptsPerMinute: getEnvIntOrDefault("LABSESSION_LOGIN_ATTEMPTS_PER_MINUTE", 5),
		MetricsAddr:            os.Getenv("LABSESSION_METRICS_ADDR"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		DevAuthPort:                 getEnvIntOrDefault("DEVAUTH_PORT", 8080),
		DevAuthAccessTTL:            getEnvDurationOrDefault("DEVAUTH_ACCESS_TTL", 5*time.Minute),
		DevAuthInlinePrincipal:      getEnvOrDefault("DEVAUTH_INLINE_PRINCIPAL", "false") == "true",
		DevAuthHousekeepingInterval: getEnvDurationOrDefault("DEVAUTH_HOUSEKEEPING_INTERVAL", 10*time.Minute),
		ShutdownGracePeriod:         getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// Validate checks struct tags, then rules that span fields.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if c.IdleTime > 0 && c.WarningTime >= c.IdleTime {
		return fmt.Errorf("LABSESSION_WARNING_TIME (%s) must be shorter than LABSESSION_IDLE_TIME (%s)", c.WarningTime, c.IdleTime)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s: failed %q (value %v)", e.Field(), e.Tag(), e.Value()))
	}
	return errors.New(strings.Join(messages, "; "))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are milliseconds, matching how idle times are usually quoted.
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	return defaultValue
}
