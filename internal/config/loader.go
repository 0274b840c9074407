// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC process timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
//  5. Resolve the display timezone against the tz database.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by Load to aid debugging.
type ConfigError struct {
	Stage   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the configuration from the environment.
func Load() (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs. All scheduling
	// comparisons assume time.Now() produces UTC-comparable values.
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent). godotenv does NOT
	// override existing environment variables.
	_ = godotenv.Load()

	// Step 3: Process envconfig tags.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Stage: "envconfig", Message: "failed to process environment", Err: err}
	}

	// Step 4: Validate the populated struct.
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{Stage: "validate", Message: "invalid configuration", Err: err}
	}

	// Step 5: The display timezone must exist in the tz database; resolving
	// it here fails fast instead of at the first schedule write.
	if _, err := time.LoadLocation(cfg.DisplayTimezone); err != nil {
		return nil, &ConfigError{Stage: "timezone", Message: fmt.Sprintf("unknown DISPLAY_TIMEZONE %q", cfg.DisplayTimezone), Err: err}
	}

	return &cfg, nil
}

// Location returns the resolved display timezone. Load has already verified
// the name, so failures here indicate the tz database changed underneath the
// process; UTC is the safe fallback.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
