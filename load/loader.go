// Package load writes report records idempotently.
//
// Every write is a conditional insert inside one transaction: the natural key
// is probed first and the row is inserted only when absent. There is no update
// in place. Failed writes are retried with exponential backoff, reconnecting
// the storage session before each new attempt, and abandoned once the retry
// budget is spent.
package load

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/teranos/paysync/db"
	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/normalize"
)

// Store is the storage session the loader writes through
type Store interface {
	DB() *sqlx.DB
	Rebind(query string) string
	Reconnect(ctx context.Context) error
}

// RetryPolicy bounds the retry loop of a single write
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy waits a minute before the first retry and gives up after five attempts
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Initial: time.Minute, Max: 10 * time.Minute}

var profileColumns = []string{
	"facility_name", "department", "department_code", "employee_first_name",
	"employee_middle_name", "employee_last_name", "hire_date", "rehire_date",
	"termination_date", "leave_date", "seniority_date", "position",
	"position_id", "system_id", "employee_id", "status", "status_type",
	"email", "pay_type", "hourly_rate", "load_date",
}

var checkLineColumns = []string{
	"facility_name", "department", "department_code", "employee_first_name", "employee_last_name",
	"position", "position_code", "system_id", "employee_id", "hours", "dollars", "earning_code",
	"earning_group", "check_date", "period_end_date", "check_type", "check_number", "load_date",
}

// namedInsert builds INSERT INTO table (cols) VALUES (:cols)
func namedInsert(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)",
		table, strings.Join(cols, ", "), strings.Join(cols, ", :"))
}

func without(cols []string, drop string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}

var (
	insertTypeA     = namedInsert(db.TableProfileTypeA, profileColumns)
	insertTypeB     = namedInsert(db.TableProfileTypeB, without(profileColumns, "hourly_rate"))
	insertCheckLine = namedInsert(db.TableCheckLines, checkLineColumns)

	existsProfileQuery = "SELECT EXISTS(SELECT 1 FROM %s WHERE system_id = ? AND load_date = ?)"
	existsCheckLine    = "SELECT EXISTS(SELECT 1 FROM " + db.TableCheckLines +
		" WHERE system_id = ? AND earning_code = ? AND earning_group = ?)"
)

// Loader performs conditional inserts with bounded retry
type Loader struct {
	store  Store
	policy RetryPolicy
	logger *zap.SugaredLogger
}

// New creates a loader writing through store
func New(store Store, policy RetryPolicy, logger *zap.SugaredLogger) *Loader {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Loader{store: store, policy: policy, logger: logger}
}

// UpsertProfile inserts rec into the variant's table unless a row with the
// same system id and load date exists. Returns true when a row was inserted.
func (l *Loader) UpsertProfile(ctx context.Context, variant normalize.Variant, rec normalize.ProfileRecord) (bool, error) {
	var table, insert string
	switch variant {
	case normalize.VariantA:
		table, insert = db.TableProfileTypeA, insertTypeA
	case normalize.VariantB:
		table, insert = db.TableProfileTypeB, insertTypeB
	default:
		return false, errors.Newf("unknown profile variant %d", variant)
	}

	exists := fmt.Sprintf(existsProfileQuery, table)
	return l.insertIfAbsent(ctx, "upsert_profile", exists, []interface{}{rec.SystemID, rec.LoadDate}, insert, rec)
}

// UpsertCheckLine inserts rec unless a row with the same system id, earning
// code and earning group exists. Returns true when a row was inserted.
func (l *Loader) UpsertCheckLine(ctx context.Context, rec normalize.CheckLineRecord) (bool, error) {
	args := []interface{}{rec.SystemID, rec.EarningCode, rec.EarningGroup}
	return l.insertIfAbsent(ctx, "upsert_check_line", existsCheckLine, args, insertCheckLine, rec)
}

func (l *Loader) insertIfAbsent(ctx context.Context, op, existsQuery string, keyArgs []interface{}, insertQuery string, rec interface{}) (bool, error) {
	attempt := 0
	var lastErr error

	write := func() (bool, error) {
		attempt++
		if attempt > 1 {
			if err := l.store.Reconnect(ctx); err != nil {
				lastErr = err
				return false, err
			}
		}
		inserted, err := l.conditionalInsert(ctx, existsQuery, keyArgs, insertQuery, rec)
		lastErr = err
		return inserted, err
	}

	notify := func(err error, wait time.Duration) {
		l.logger.Warnw("Write failed, reconnecting before retry",
			"operation", op,
			"attempt", attempt,
			"max_attempts", l.policy.MaxAttempts,
			"wait", wait.String(),
			"connection_lost", db.IsConnectionLost(err),
			"error", err,
		)
	}

	inserted, err := backoff.RetryNotifyWithData[bool](write, l.backOff(ctx), notify)
	if err == nil {
		return inserted, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, errors.Wrapf(ctxErr, "%s interrupted", op)
	}
	if lastErr == nil {
		lastErr = err
	}

	l.logger.Errorw("Write abandoned",
		"operation", op,
		"attempts", attempt,
		"error", lastErr,
	)
	return false, errors.Mark(errors.Wrapf(lastErr, "%s abandoned after %d attempts", op, attempt), errors.ErrWriteAbandoned)
}

func (l *Loader) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.policy.Initial
	if l.policy.Max > 0 {
		b.MaxInterval = l.policy.Max
	}
	b.MaxElapsedTime = 0 // Bounded by attempts, not time
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(l.policy.MaxAttempts-1)), ctx)
}

// conditionalInsert probes the natural key and inserts in one transaction
func (l *Loader) conditionalInsert(ctx context.Context, existsQuery string, keyArgs []interface{}, insertQuery string, rec interface{}) (bool, error) {
	h := l.store.DB()
	if h == nil {
		return false, db.ErrSessionClosed
	}

	tx, err := h.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin")
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists, l.store.Rebind(existsQuery), keyArgs...); err != nil {
		tx.Rollback()
		return false, errors.Wrap(err, "probe natural key")
	}
	if exists {
		if err := tx.Rollback(); err != nil {
			return false, errors.Wrap(err, "rollback")
		}
		return false, nil
	}

	if _, err := tx.NamedExecContext(ctx, insertQuery, rec); err != nil {
		tx.Rollback()
		return false, errors.Wrap(err, "insert")
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "commit")
	}
	return true, nil
}
