package am

import (
	"net/url"
	"time"

	"github.com/teranos/paysync/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.WithHint(errors.New("api.base_url is required"),
			"set api.base_url in am.toml or PAYSYNC_API_BASE_URL")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.Newf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.ClientID == "" || c.API.ClientSecret == "" {
		return errors.WithHint(errors.New("api.client_id and api.client_secret are required"),
			"put client_id and client_secret in .env or set PAYSYNC_API_CLIENT_ID / PAYSYNC_API_CLIENT_SECRET")
	}
	if c.API.TimeoutSeconds <= 0 {
		return errors.Newf("api.timeout_seconds must be > 0, got %d", c.API.TimeoutSeconds)
	}
	if c.API.RequestsPerSecond < 0 {
		return errors.Newf("api.requests_per_second must be >= 0, got %f", c.API.RequestsPerSecond)
	}

	switch c.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return errors.Newf("database.driver must be sqlite3 or pgx, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn cannot be empty")
	}

	// Refresh thresholds: zero would refresh before every call, negative is invalid
	if c.Refresh.ProfileSeconds <= 0 {
		return errors.Newf("refresh.profile_seconds must be > 0, got %d", c.Refresh.ProfileSeconds)
	}
	if c.Refresh.CheckSeconds <= 0 {
		return errors.Newf("refresh.check_seconds must be > 0, got %d", c.Refresh.CheckSeconds)
	}

	if c.Load.RetryMaxAttempts < 1 {
		return errors.Newf("load.retry_max_attempts must be >= 1, got %d", c.Load.RetryMaxAttempts)
	}
	if c.Load.RetryInitialSeconds < 0 {
		return errors.Newf("load.retry_initial_seconds must be >= 0, got %d", c.Load.RetryInitialSeconds)
	}
	if c.Load.RetryMaxSeconds < c.Load.RetryInitialSeconds {
		return errors.Newf("load.retry_max_seconds (%d) must be >= load.retry_initial_seconds (%d)",
			c.Load.RetryMaxSeconds, c.Load.RetryInitialSeconds)
	}
	if c.Load.ProgressInterval < 0 {
		return errors.Newf("load.progress_interval must be >= 0, got %d", c.Load.ProgressInterval)
	}

	if _, err := time.Parse("15:04", c.Schedule.DailyAt); err != nil {
		return errors.Newf("schedule.daily_at must be HH:MM, got %q", c.Schedule.DailyAt)
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return errors.Wrapf(err, "schedule.timezone %q", c.Schedule.Timezone)
		}
	}
	if c.Schedule.TickSeconds <= 0 {
		return errors.Newf("schedule.tick_seconds must be > 0, got %d", c.Schedule.TickSeconds)
	}

	if c.Export.Enabled && c.Export.Dir == "" {
		return errors.New("export.dir cannot be empty when export is enabled")
	}

	return nil
}
