package db

import (
	"context"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/sym"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// SQLiteBusyTimeoutMS is the busy timeout applied to every SQLite connection
const SQLiteBusyTimeoutMS = 5000

// Session owns the single storage connection of a run.
// Reconnect swaps the underlying handle in place; callers must fetch DB()
// again after a reconnect rather than caching it.
type Session struct {
	driver string
	dsn    string
	logger *zap.SugaredLogger

	// connectFn opens a fresh handle; Open points it at connect
	connectFn func(ctx context.Context) (*sqlx.DB, error)

	mu sync.Mutex
	db *sqlx.DB
}

// Open opens a storage session for driver and dsn.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(ctx context.Context, driver, dsn string, logger *zap.SugaredLogger) (*Session, error) {
	s := &Session{driver: driver, dsn: dsn, logger: logger}
	s.connectFn = s.connect
	db, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

// NewSession builds a session around an existing handle. connector is
// called by Reconnect to obtain the replacement; nil disables reconnecting.
func NewSession(db *sqlx.DB, connector func(ctx context.Context) (*sqlx.DB, error)) *Session {
	return &Session{driver: db.DriverName(), db: db, connectFn: connector}
}

func (s *Session) connect(ctx context.Context) (*sqlx.DB, error) {
	if s.logger != nil {
		s.logger.Debugw("Opening database", "driver", s.driver, "symbol", sym.DB)
	}

	switch s.driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errors.Newf("unsupported database driver %q", s.driver)
	}

	db, err := sqlx.Open(s.driver, s.dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", s.driver)
	}

	if s.driver == DriverSQLite {
		// One connection keeps :memory: databases and the single-writer model consistent
		db.SetMaxOpenConns(1)
		if err := applySQLitePragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to reach %s database", s.driver)
	}

	if s.logger != nil {
		s.logger.Infow("Database opened successfully",
			"driver", s.driver,
			"symbol", sym.DB,
		)
	}
	return db, nil
}

func applySQLitePragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode = WAL", "enable WAL mode"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
		{"PRAGMA busy_timeout = 5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.stmt); err != nil {
			return errors.Wrapf(err, "failed to %s", p.what)
		}
	}
	return nil
}

// DB returns the current handle
func (s *Session) DB() *sqlx.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Driver returns the driver name
func (s *Session) Driver() string {
	return s.driver
}

// Rebind converts ? placeholders to the driver's bindvar style
func (s *Session) Rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(s.driver), query)
}

// Reconnect closes the current handle and opens a fresh one.
// The old handle is closed even when the new connection fails.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.connectFn == nil {
		return errors.New("session cannot reconnect")
	}

	s.mu.Lock()
	old := s.db
	s.db = nil
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	db, err := s.connectFn(ctx)
	if err != nil {
		return errors.Wrap(err, "reconnect")
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Infow("Database reconnected", "driver", s.driver, "symbol", sym.DB)
	}
	return nil
}

// Close releases the handle
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// OpenWithMigrations opens a session and applies all pending migrations
func OpenWithMigrations(ctx context.Context, driver, dsn string, logger *zap.SugaredLogger) (*Session, error) {
	s, err := Open(ctx, driver, dsn, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, s, logger); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return s, nil
}
