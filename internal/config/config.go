// Package config defines the global configuration structure for the tweetrelay
// dispatch engine. Configuration is loaded once at process initialization and
// is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import (
	"time"

	"tweetrelay/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// DisplayTimezone is the host system's configured timezone, used to
	// interpret local times submitted without an explicit offset. It never
	// participates in due-time comparisons, which are UTC only.
	DisplayTimezone string `envconfig:"DISPLAY_TIMEZONE" default:"UTC" validate:"required"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Webhook  WebhookConfig
	Dispatch DispatchConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// WebhookConfig holds settings for outbound delivery to the receiver (n8n).
// URL may be empty: the push path then short-circuits each cycle with a
// configuration error instead of burning item retries.
type WebhookConfig struct {
	URL       string       `envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	Secret    SecretString `envconfig:"WEBHOOK_SECRET"`
	UserAgent string       `envconfig:"WEBHOOK_USER_AGENT" default:"TweetRelay-Dispatch/1.0"`
	Timeout   time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
}

// DispatchConfig holds the scheduling knobs of the dispatch engine.
type DispatchConfig struct {
	// Interval is the Push Trigger cadence.
	Interval time.Duration `envconfig:"DISPATCH_INTERVAL" default:"5m"`

	// MaxAttempts caps delivery attempts per item; reaching it is terminal.
	MaxAttempts int `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"3" validate:"min=1"`

	// RetryBaseDelay scales the linear backoff (baseDelay * attempts).
	RetryBaseDelay time.Duration `envconfig:"DISPATCH_RETRY_BASE_DELAY" default:"5m"`
	RetryMaxDelay  time.Duration `envconfig:"DISPATCH_RETRY_MAX_DELAY" default:"1h"`

	// Selection windows. Push runs on the trigger cadence; pull tolerates a
	// wider lookback because the poll cadence is receiver-controlled.
	PushLookback  time.Duration `envconfig:"DISPATCH_PUSH_LOOKBACK" default:"5m"`
	PushLookahead time.Duration `envconfig:"DISPATCH_PUSH_LOOKAHEAD" default:"5m"`
	PullLookback  time.Duration `envconfig:"DISPATCH_PULL_LOOKBACK" default:"15m"`
	PullLookahead time.Duration `envconfig:"DISPATCH_PULL_LOOKAHEAD" default:"5m"`

	// BatchLimit bounds how many due items one cycle or poll may claim.
	BatchLimit int `envconfig:"DISPATCH_BATCH_LIMIT" default:"100" validate:"min=1"`
}
