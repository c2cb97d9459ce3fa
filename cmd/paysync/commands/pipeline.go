package commands

import (
	"context"
	"time"

	"github.com/teranos/paysync/am"
	"github.com/teranos/paysync/auth"
	"github.com/teranos/paysync/db"
	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/export"
	"github.com/teranos/paysync/internal/httpclient"
	"github.com/teranos/paysync/ixgest/payroll"
	"github.com/teranos/paysync/load"
	"github.com/teranos/paysync/logger"
	"github.com/teranos/paysync/pulse/schedule"
	"github.com/teranos/paysync/remote"
	"github.com/teranos/paysync/version"
)

// pipeline owns everything one extraction command opens
type pipeline struct {
	session   *db.Session
	exporter  *export.Writer
	processor *payroll.Processor
}

// openDatabase opens the configured store and applies pending migrations
func openDatabase(ctx context.Context, cfg *am.Config) (*db.Session, error) {
	session, err := db.OpenWithMigrations(ctx, cfg.Database.Driver, cfg.Database.DSN, logger.ComponentLogger("db"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Database.Driver)
	}
	return session, nil
}

// buildPipeline wires credentials, API client, storage and the processor.
// The first token is acquired here so bad credentials fail before any work.
func buildPipeline(ctx context.Context, cfg *am.Config, mode payroll.Mode, verbosity int) (*pipeline, error) {
	opts := httpclient.Options{
		Timeout:           cfg.API.Timeout(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		UserAgent:         version.Get().UserAgent(),
	}

	// The token exchange goes through an unauthenticated client pinned to the same host
	tokenClient, err := httpclient.New(cfg.API.BaseURL, nil, opts)
	if err != nil {
		return nil, errors.Wrap(err, "token client")
	}
	creds := auth.NewManager(cfg.API.BaseURL, cfg.API.ClientID, cfg.API.ClientSecret,
		tokenClient.Client, logger.ComponentLogger("auth"))
	if _, err := creds.Acquire(ctx); err != nil {
		return nil, err
	}

	apiClient, err := httpclient.New(cfg.API.BaseURL, creds, opts)
	if err != nil {
		return nil, errors.Wrap(err, "API client")
	}
	fetcher := remote.NewFetcher(apiClient, cfg.API.BaseURL, logger.ComponentLogger("remote"))

	daily, err := schedule.ParseDaily(cfg.Schedule.DailyAt, cfg.Schedule.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "schedule.daily_at")
	}

	session, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	loader := load.New(session, load.RetryPolicy{
		MaxAttempts: cfg.Load.RetryMaxAttempts,
		Initial:     time.Duration(cfg.Load.RetryInitialSeconds) * time.Second,
		Max:         time.Duration(cfg.Load.RetryMaxSeconds) * time.Second,
	}, logger.ComponentLogger("load"))

	processor := payroll.NewProcessor(fetcher, creds, loader, payroll.Options{
		Mode:             mode,
		ProfileThreshold: cfg.Refresh.ProfileThreshold(),
		CheckThreshold:   cfg.Refresh.CheckThreshold(),
		ExceptionNames:   cfg.Classify.ExceptionNames,
		ExceptionCodes:   cfg.Classify.ExceptionCodes,
		ProgressInterval: cfg.Load.ProgressInterval,
		Schedule: schedule.TickerConfig{
			Daily:    daily,
			Interval: time.Duration(cfg.Schedule.TickSeconds) * time.Second,
		},
		RetryInitial: time.Duration(cfg.Load.RetryInitialSeconds) * time.Second,
		RetryMax:     time.Duration(cfg.Load.RetryMaxSeconds) * time.Second,
	}, logger.ComponentLogger("payroll"))
	processor.SetRunLog(load.NewRunStore(session))
	processor.SetEmitter(payroll.NewCLIEmitter(verbosity))

	pl := &pipeline{session: session, processor: processor}

	if cfg.Export.Enabled {
		headers := export.ProfileHeaders
		if mode == payroll.ModeCheck {
			headers = export.CheckHeaders
		}
		w, err := export.Create(cfg.Export.Dir, mode.String(), headers)
		if err != nil {
			session.Close()
			return nil, err
		}
		pl.exporter = w
		processor.SetExporter(w)
	}

	return pl, nil
}

// Close flushes the export and closes the store
func (pl *pipeline) Close() error {
	var firstErr error
	if pl.exporter != nil {
		if err := pl.exporter.Close(); err != nil {
			firstErr = err
		}
	}
	if err := pl.session.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
