package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/publsync/internal/store"
)

// Load reads configuration from environment variables and the settings file.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom variable lookup.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	settings, err := LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	cfg.Settings = settings

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "-" {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, getenv); err != nil {
				return err
			}
			continue
		}

		if envName == "" {
			continue
		}

		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		// Try primary env var, then alternate
		value := getenv(envName)
		if value == "" && envAlt != "" {
			value = getenv(envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// Split comma-separated values, trim whitespace
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid for any command.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case BackendAirtable:
		if c.Store.AirtableAPIKey == "" {
			errs = append(errs, "AIRTABLE_API_KEY is required for the airtable backend")
		}
		if c.Store.AirtableBaseID == "" {
			errs = append(errs, "AIRTABLE_BASE_ID is required for the airtable backend")
		}
		if c.Store.Timeout <= 0 {
			errs = append(errs, "AIRTABLE_TIMEOUT must be positive")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres backend")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND (%q) must be one of: airtable, postgres, sqlite", c.Store.Backend))
	}

	if c.Paths.DownloadDir == "" {
		errs = append(errs, "DOWNLOAD_DIR must not be empty")
	}
	if c.Paths.ArchiveDir == "" {
		errs = append(errs, "ARCHIVE_DIR must not be empty")
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, "DOWNLOAD_TIMEOUT must be positive")
	}

	if c.Notify.SMTPHost != "" && (c.Notify.SMTPPort <= 0 || c.Notify.SMTPPort > 65535) {
		errs = append(errs, fmt.Sprintf("SMTP_PORT (%d) must be 1-65535", c.Notify.SMTPPort))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	errs = append(errs, c.Settings.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ValidateDownload checks the credentials the downloader needs. It is called
// before any network activity by commands that download.
func (c *Config) ValidateDownload() error {
	var errs []string
	if c.Publ.ID == "" {
		errs = append(errs, "PUBL_ID is required")
	}
	if c.Publ.Password == "" {
		errs = append(errs, "PUBL_PW is required")
	}
	if c.Publ.ChannelID == "" {
		errs = append(errs, "PUBL_CHANNEL_ID is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// BatchSize returns the configured batch size capped at the store limit.
func (c *Config) BatchSize() int {
	return store.ClampBatchSize(c.Settings.BatchSize)
}

// String returns a safe string representation of the config for logging.
// Credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Publ: {ID: %s, Password: %s, ChannelID: %q}, ",
		mask(c.Publ.ID), mask(c.Publ.Password), c.Publ.ChannelID))
	b.WriteString(fmt.Sprintf("Store: {Backend: %q, AirtableAPIKey: %s, AirtableBaseID: %q, DatabaseURL: %s, SQLitePath: %q}, ",
		c.Store.Backend, mask(c.Store.AirtableAPIKey), c.Store.AirtableBaseID, mask(c.Store.DatabaseURL), c.Store.SQLitePath))
	b.WriteString(fmt.Sprintf("Paths: {DownloadDir: %q, ArchiveDir: %q}, ",
		c.Paths.DownloadDir, c.Paths.ArchiveDir))
	b.WriteString(fmt.Sprintf("Notify: {SMTPHost: %q, SMTPPassword: %s, To: %v}, ",
		c.Notify.SMTPHost, mask(c.Notify.SMTPPassword), c.Notify.To))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
