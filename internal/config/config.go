// Package config provides centralized configuration management for publsync.
//
// Secrets and paths come from environment variables (a .env file is loaded by
// main). Tunables that change rarely, like table names, test-record heuristics
// and merge policies, come from an optional settings file; see settings.go.
package config

import "time"

// Store backends.
const (
	BackendAirtable = "airtable"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Publ     PublConfig
	Store    StoreConfig
	Paths    PathsConfig
	Download DownloadConfig
	Logging  LoggingConfig
	Notify   NotifyConfig

	// SettingsFile is the settings file path. A missing file means defaults.
	SettingsFile string `env:"SETTINGS_FILE" default:"settings.json5"`

	// Settings is loaded from SettingsFile, not from the environment.
	Settings Settings `env:"-"`
}

// PublConfig holds the publ.biz console credentials used by the downloader.
type PublConfig struct {
	ID        string `env:"PUBL_ID"`
	Password  string `env:"PUBL_PW"`
	ChannelID string `env:"PUBL_CHANNEL_ID" default:"L2NoYW5uZWxzLzE3Njkx"`
}

// StoreConfig selects and configures the remote store.
type StoreConfig struct {
	// Backend is one of airtable, postgres, sqlite (default: airtable)
	Backend string `env:"STORE_BACKEND" default:"airtable"`

	AirtableAPIKey string `env:"AIRTABLE_API_KEY"`
	AirtableBaseID string `env:"AIRTABLE_BASE_ID"`
	AirtableURL    string `env:"AIRTABLE_URL" default:"https://api.airtable.com"`

	// Timeout bounds each Airtable request (default: 30s)
	Timeout time.Duration `env:"AIRTABLE_TIMEOUT" default:"30s"`

	// DatabaseURL is the Postgres connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	SQLitePath string `env:"SQLITE_PATH" default:"publsync.db"`
}

// PathsConfig holds the working directories.
type PathsConfig struct {
	DownloadDir string `env:"DOWNLOAD_DIR" default:"downloads"`
	ArchiveDir  string `env:"ARCHIVE_DIR" default:"archive"`
}

// DownloadConfig configures the external downloader.
type DownloadConfig struct {
	// Command is run through the shell to drive the browser download.
	// Empty means CSVs are placed in DownloadDir by other means.
	Command string `env:"DOWNLOAD_COMMAND"`

	// Timeout bounds the download command (default: 10m)
	Timeout time.Duration `env:"DOWNLOAD_TIMEOUT" default:"10m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// NotifyConfig configures the failure e-mail. Notification is off unless
// SMTPHost and To are both set.
type NotifyConfig struct {
	SMTPHost     string   `env:"SMTP_HOST"`
	SMTPPort     int      `env:"SMTP_PORT" default:"587"`
	SMTPUser     string   `env:"SMTP_USER"`
	SMTPPassword string   `env:"SMTP_PASSWORD"`
	From         string   `env:"SMTP_FROM"`
	To           []string `env:"NOTIFY_TO"`
}

// Enabled reports whether failure notices should be sent.
func (n NotifyConfig) Enabled() bool {
	return n.SMTPHost != "" && len(n.To) > 0
}
