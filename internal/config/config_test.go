package config

import (
	"errors"
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CELCAT_USERNAME", "student1")
	t.Setenv("CELCAT_PASSWORD", "hunter2")
	t.Setenv("CELCAT_STUDENT_ID", "12345")
	t.Setenv("CELCAT_BASE_URL", "https://timetable.example.ac.uk")
	t.Setenv("CELCAT_TIMEZONE", "")
	t.Setenv("GOOGLE_CALENDAR_ID", "")
	t.Setenv("GOOGLE_CREDENTIALS_PATH", "")
	t.Setenv("GOOGLE_TOKEN_PATH", "")
	t.Setenv("CELSYNC_DEBUG_DIR", "")
	t.Setenv("LOG_LEVEL", "")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Timezone != "Europe/London" {
		t.Errorf("Timezone = %q, want Europe/London", cfg.Timezone)
	}
	if cfg.Location == nil || cfg.Location.String() != "Europe/London" {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.CalendarID != "primary" {
		t.Errorf("CalendarID = %q, want primary", cfg.CalendarID)
	}
	if cfg.CredentialsPath != "credentials.json" || cfg.TokenPath != "token.json" {
		t.Errorf("paths = %q %q", cfg.CredentialsPath, cfg.TokenPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CELCAT_TIMEZONE", "Europe/Paris")
	t.Setenv("GOOGLE_CALENDAR_ID", "timetable@group.calendar.google.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Timezone != "Europe/Paris" || cfg.Location.String() != "Europe/Paris" {
		t.Errorf("timezone override not applied: %q %v", cfg.Timezone, cfg.Location)
	}
	if cfg.CalendarID != "timetable@group.calendar.google.com" {
		t.Errorf("CalendarID = %q", cfg.CalendarID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_MissingRequiredField(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CELCAT_STUDENT_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected a configuration error")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if !strings.Contains(err.Error(), "CELCAT_STUDENT_ID is required") {
		t.Errorf("error should name the missing variable, got %q", err.Error())
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CELCAT_TIMEZONE", "Mars/Olympus_Mons")

	_, err := Load()
	if err == nil {
		t.Fatal("expected a configuration error")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if !strings.Contains(err.Error(), "CELCAT_TIMEZONE") {
		t.Errorf("error should name the bad variable, got %q", err.Error())
	}
}

func TestValidate_ReportsEveryMissingCredential(t *testing.T) {
	cfg := &Config{CalendarID: "primary", CredentialsPath: "c.json", TokenPath: "t.json"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation to fail")
	}
	for _, want := range []string{"CELCAT_USERNAME", "CELCAT_PASSWORD", "CELCAT_STUDENT_ID", "CELCAT_BASE_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %s: %q", want, err.Error())
		}
	}
}
