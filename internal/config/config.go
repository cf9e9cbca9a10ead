// Package config loads and validates the tool's configuration from the
// environment (optionally seeded from a .env file). Validation happens
// before any network call: a missing credential or student id is a
// ConfigError surfaced pre-flight.
package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

// ConfigError marks a terminal pre-flight configuration problem.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("configuration: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// Config holds everything the tool needs: portal credentials, the portal
// timezone, and the Google Calendar target.
type Config struct {
	Username  string
	Password  string
	StudentID string
	BaseURL   string

	// Timezone is the IANA zone the portal renders wall times in.
	Timezone string
	Location *time.Location

	CalendarID      string
	CredentialsPath string
	TokenPath       string

	// DebugDir receives page snapshots on portal failures; empty disables
	// them.
	DebugDir string

	LogLevel string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present; its absence is not an
// error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Username:        os.Getenv("CELCAT_USERNAME"),
		Password:        os.Getenv("CELCAT_PASSWORD"),
		StudentID:       os.Getenv("CELCAT_STUDENT_ID"),
		BaseURL:         os.Getenv("CELCAT_BASE_URL"),
		Timezone:        getenvDefault("CELCAT_TIMEZONE", "Europe/London"),
		CalendarID:      getenvDefault("GOOGLE_CALENDAR_ID", "primary"),
		CredentialsPath: getenvDefault("GOOGLE_CREDENTIALS_PATH", "credentials.json"),
		TokenPath:       getenvDefault("GOOGLE_TOKEN_PATH", "token.json"),
		DebugDir:        os.Getenv("CELSYNC_DEBUG_DIR"),
		LogLevel:        getenvDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("invalid CELCAT_TIMEZONE %q: %w", cfg.Timezone, err)}
	}
	cfg.Location = loc

	return cfg, nil
}

// Validate checks the fields required before authentication may begin.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Username, validation.Required.Error("CELCAT_USERNAME is required")),
		validation.Field(&c.Password, validation.Required.Error("CELCAT_PASSWORD is required")),
		validation.Field(&c.StudentID, validation.Required.Error("CELCAT_STUDENT_ID is required")),
		validation.Field(&c.BaseURL, validation.Required.Error("CELCAT_BASE_URL is required")),
		validation.Field(&c.CalendarID, validation.Required),
		validation.Field(&c.CredentialsPath, validation.Required),
		validation.Field(&c.TokenPath, validation.Required),
	)
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
