package am

import (
	"github.com/spf13/viper"
)

// Default values shared with tests and callers that bypass viper
const (
	DefaultDriver              = "sqlite3"
	DefaultDSN                 = "paysync.db"
	DefaultProfileRefresh      = 240
	DefaultCheckRefresh        = 260
	DefaultRetryMaxAttempts    = 5
	DefaultRetryInitialSeconds = 60
	DefaultRetryMaxSeconds     = 600
	DefaultProgressInterval    = 100
	DefaultDailyAt             = "06:00"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.timeout_seconds", 60)
	v.SetDefault("api.requests_per_second", 0) // Unpaced, matches a single sequential caller

	// Database defaults
	v.SetDefault("database.driver", DefaultDriver)
	v.SetDefault("database.dsn", DefaultDSN)

	// Token refresh thresholds (empirical, per mode)
	v.SetDefault("refresh.profile_seconds", DefaultProfileRefresh)
	v.SetDefault("refresh.check_seconds", DefaultCheckRefresh)

	// Loader retry budget
	v.SetDefault("load.retry_max_attempts", DefaultRetryMaxAttempts)
	v.SetDefault("load.retry_initial_seconds", DefaultRetryInitialSeconds)
	v.SetDefault("load.retry_max_seconds", DefaultRetryMaxSeconds)
	v.SetDefault("load.progress_interval", DefaultProgressInterval)

	// Exception sets
	v.SetDefault("classify.exception_names", []string{"beecan health llc", "beecan health co llc"})
	v.SetDefault("classify.exception_codes", []string{"BHC", "BHCO"})

	// Daily profile re-run
	v.SetDefault("schedule.daily_at", DefaultDailyAt)
	v.SetDefault("schedule.timezone", "")
	v.SetDefault("schedule.tick_seconds", 30)

	// Export
	v.SetDefault("export.enabled", false)
	v.SetDefault("export.dir", "exports")

	// Logging
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("api.base_url", "PAYSYNC_API_BASE_URL")
	v.BindEnv("api.client_id", "PAYSYNC_API_CLIENT_ID")
	v.BindEnv("api.client_secret", "PAYSYNC_API_CLIENT_SECRET")
	v.BindEnv("database.driver", "PAYSYNC_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "PAYSYNC_DATABASE_DSN")
}

// sensitiveKeys are masked whenever configuration is displayed
var sensitiveKeys = map[string]bool{
	"api.client_secret": true,
	"database.dsn":      true,
}

// IsSensitive reports whether a dotted key holds a secret
func IsSensitive(key string) bool {
	return sensitiveKeys[key]
}
