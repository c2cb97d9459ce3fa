package am

import "time"

// Config represents the paysync configuration
type Config struct {
	API      APIConfig      `mapstructure:"api" toml:"api"`
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Refresh  RefreshConfig  `mapstructure:"refresh" toml:"refresh"`
	Load     LoadConfig     `mapstructure:"load" toml:"load"`
	Classify ClassifyConfig `mapstructure:"classify" toml:"classify"`
	Schedule ScheduleConfig `mapstructure:"schedule" toml:"schedule"`
	Export   ExportConfig   `mapstructure:"export" toml:"export"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

// APIConfig configures the remote payroll API
type APIConfig struct {
	BaseURL           string  `mapstructure:"base_url" toml:"base_url"`
	ClientID          string  `mapstructure:"client_id" toml:"client_id"`
	ClientSecret      string  `mapstructure:"client_secret" toml:"client_secret"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`         // Per-request HTTP timeout
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second"` // 0 = unpaced
}

// DatabaseConfig configures the relational store
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" toml:"driver"` // sqlite3 or pgx
	DSN    string `mapstructure:"dsn" toml:"dsn"`
}

// RefreshConfig holds the token refresh thresholds per mode, in seconds.
// These are empirical and not tied to the token's declared lifetime.
type RefreshConfig struct {
	ProfileSeconds int `mapstructure:"profile_seconds" toml:"profile_seconds"`
	CheckSeconds   int `mapstructure:"check_seconds" toml:"check_seconds"`
}

// LoadConfig configures storage writes
type LoadConfig struct {
	RetryMaxAttempts    int `mapstructure:"retry_max_attempts" toml:"retry_max_attempts"`
	RetryInitialSeconds int `mapstructure:"retry_initial_seconds" toml:"retry_initial_seconds"`
	RetryMaxSeconds     int `mapstructure:"retry_max_seconds" toml:"retry_max_seconds"`
	ProgressInterval    int `mapstructure:"progress_interval" toml:"progress_interval"` // Log every N inserted rows, 0 = off
}

// ClassifyConfig holds the exception sets
type ClassifyConfig struct {
	ExceptionNames []string `mapstructure:"exception_names" toml:"exception_names"` // Facility names routed to type-B
	ExceptionCodes []string `mapstructure:"exception_codes" toml:"exception_codes"` // Legal codes skipped in check mode
}

// ScheduleConfig configures the daily re-run of profile mode
type ScheduleConfig struct {
	DailyAt     string `mapstructure:"daily_at" toml:"daily_at"` // HH:MM
	Timezone    string `mapstructure:"timezone" toml:"timezone"` // IANA name, empty = local
	TickSeconds int    `mapstructure:"tick_seconds" toml:"tick_seconds"`
}

// ExportConfig configures the optional CSV export
type ExportConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Dir     string `mapstructure:"dir" toml:"dir"`
}

// LogConfig configures run logging
type LogConfig struct {
	Dir  string `mapstructure:"dir" toml:"dir"`
	JSON bool   `mapstructure:"json" toml:"json"`
}

// Timeout returns the HTTP timeout as a duration
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProfileThreshold returns the profile-mode refresh threshold
func (c RefreshConfig) ProfileThreshold() time.Duration {
	return time.Duration(c.ProfileSeconds) * time.Second
}

// CheckThreshold returns the check-mode refresh threshold
func (c RefreshConfig) CheckThreshold() time.Duration {
	return time.Duration(c.CheckSeconds) * time.Second
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
