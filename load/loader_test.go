package load

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/paysync/db"
	"github.com/teranos/paysync/errors"
	testutil "github.com/teranos/paysync/internal/testing"
	"github.com/teranos/paysync/normalize"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond, Max: time.Millisecond}

func profile(systemID, loadDate string) normalize.ProfileRecord {
	return normalize.ProfileRecord{
		FacilityName:      "Acme Health",
		EmployeeFirstName: "Sean",
		EmployeeLastName:  "O`Brien",
		HireDate:          sql.NullString{String: "2020-01-15", Valid: true},
		SystemID:          systemID,
		EmployeeID:        "E-17",
		Status:            "A",
		HourlyRate:        23.75,
		LoadDate:          loadDate,
	}
}

func checkLine(systemID, group, code string) normalize.CheckLineRecord {
	return normalize.CheckLineRecord{
		FacilityName: "Acme Health",
		SystemID:     systemID,
		EmployeeID:   "E-17",
		Hours:        80,
		Dollars:      1600,
		EarningCode:  code,
		EarningGroup: group,
		CheckDate:    sql.NullString{String: "2023-04-28", Valid: true},
		LoadDate:     "2023-05-01",
	}
}

func countRows(t *testing.T, s *db.Session, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func TestUpsertProfile_SameDayIsDeduplicated(t *testing.T) {
	s := testutil.CreateTestDB(t)
	l := New(s, fastRetry, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	inserted, err := l.UpsertProfile(ctx, normalize.VariantA, profile("1001", "2023-05-01"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = l.UpsertProfile(ctx, normalize.VariantA, profile("1001", "2023-05-01"))
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.Equal(t, 1, countRows(t, s, db.TableProfileTypeA))
}

func TestUpsertProfile_NewLoadDateIsNewRow(t *testing.T) {
	s := testutil.CreateTestDB(t)
	l := New(s, fastRetry, nil)
	ctx := context.Background()

	_, err := l.UpsertProfile(ctx, normalize.VariantA, profile("1001", "2023-05-01"))
	require.NoError(t, err)
	inserted, err := l.UpsertProfile(ctx, normalize.VariantA, profile("1001", "2023-05-02"))
	require.NoError(t, err)
	assert.True(t, inserted)

	assert.Equal(t, 2, countRows(t, s, db.TableProfileTypeA))
}

func TestUpsertProfile_TypeB(t *testing.T) {
	s := testutil.CreateTestDB(t)
	l := New(s, fastRetry, nil)
	ctx := context.Background()

	inserted, err := l.UpsertProfile(ctx, normalize.VariantB, profile("2002", "2023-05-01"))
	require.NoError(t, err)
	assert.True(t, inserted)

	assert.Equal(t, 1, countRows(t, s, db.TableProfileTypeB))
	assert.Equal(t, 0, countRows(t, s, db.TableProfileTypeA))

	var facility string
	require.NoError(t, s.DB().Get(&facility, "SELECT facility_name FROM employee_list_type_2 WHERE system_id = '2002'"))
	assert.Equal(t, "Acme Health", facility)

	_, err = l.UpsertProfile(ctx, normalize.Variant(9), profile("3", "2023-05-01"))
	assert.Error(t, err)
}

func TestUpsertCheckLine_Deduplicated(t *testing.T) {
	s := testutil.CreateTestDB(t)
	l := New(s, fastRetry, nil)
	ctx := context.Background()

	inserted, err := l.UpsertCheckLine(ctx, checkLine("900", normalize.GroupEarning, "REG"))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same natural key on a later day is still a duplicate
	again := checkLine("900", normalize.GroupEarning, "REG")
	again.LoadDate = "2023-05-09"
	inserted, err = l.UpsertCheckLine(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same code in another group is a different line
	inserted, err = l.UpsertCheckLine(ctx, checkLine("900", normalize.GroupTaxes, "REG"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = l.UpsertCheckLine(ctx, checkLine("900", normalize.GroupNetPay, ""))
	require.NoError(t, err)
	assert.True(t, inserted)

	assert.Equal(t, 3, countRows(t, s, db.TableCheckLines))
}

func TestUpsert_QuotesAreStoredAsParameters(t *testing.T) {
	s := testutil.CreateTestDB(t)
	l := New(s, fastRetry, nil)

	rec := checkLine("900", normalize.GroupDeductions, "X'); DROP TABLE employee_checks; --")
	inserted, err := l.UpsertCheckLine(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, 1, countRows(t, s, db.TableCheckLines))
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return sqlx.NewDb(mockDB, "sqlite3"), mock
}

func TestUpsert_ReconnectsAndRetries(t *testing.T) {
	first, firstMock := newMockDB(t)
	firstMock.ExpectBegin().WillReturnError(errors.New("write tcp: broken pipe"))
	firstMock.ExpectClose()

	second, secondMock := newMockDB(t)
	secondMock.ExpectBegin()
	secondMock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM employee_checks")).
		WithArgs("900", "REG", normalize.GroupEarning).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	secondMock.ExpectExec(regexp.QuoteMeta("INSERT INTO employee_checks")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	secondMock.ExpectCommit()

	reconnects := 0
	s := db.NewSession(first, func(ctx context.Context) (*sqlx.DB, error) {
		reconnects++
		return second, nil
	})

	l := New(s, fastRetry, zaptest.NewLogger(t).Sugar())
	inserted, err := l.UpsertCheckLine(context.Background(), checkLine("900", normalize.GroupEarning, "REG"))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, 1, reconnects)

	assert.NoError(t, firstMock.ExpectationsWereMet())
	assert.NoError(t, secondMock.ExpectationsWereMet())
}

func TestUpsert_AbandonsAfterRetryBudget(t *testing.T) {
	failing := func(t *testing.T) *sqlx.DB {
		h, mock := newMockDB(t)
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
		mock.ExpectClose()
		return h
	}

	reconnects := 0
	s := db.NewSession(failing(t), func(ctx context.Context) (*sqlx.DB, error) {
		reconnects++
		return failing(t), nil
	})

	l := New(s, fastRetry, nil)
	inserted, err := l.UpsertProfile(context.Background(), normalize.VariantA, profile("1001", "2023-05-01"))
	require.Error(t, err)
	assert.False(t, inserted)
	assert.True(t, errors.Is(err, errors.ErrWriteAbandoned))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 2, reconnects, "one reconnect before each re-attempt")
}

func TestUpsert_ExistingRowRollsBack(t *testing.T) {
	h, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM employee_list_type_1")).
		WithArgs("1001", "2023-05-01").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	l := New(db.NewSession(h, nil), fastRetry, nil)
	inserted, err := l.UpsertProfile(context.Background(), normalize.VariantA, profile("1001", "2023-05-01"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_CancelledContextIsNotAbandonment(t *testing.T) {
	h, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	ctx, cancel := context.WithCancel(context.Background())
	s := db.NewSession(h, func(context.Context) (*sqlx.DB, error) {
		cancel()
		return nil, errors.New("stopped")
	})

	l := New(s, RetryPolicy{MaxAttempts: 5, Initial: time.Millisecond, Max: time.Millisecond}, nil)
	_, err := l.UpsertCheckLine(ctx, checkLine("1", normalize.GroupNetPay, ""))
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.ErrWriteAbandoned))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNamedInsert(t *testing.T) {
	assert.Equal(t, "INSERT INTO t (a, b) VALUES (:a, :b)", namedInsert("t", []string{"a", "b"}))
	assert.NotContains(t, insertTypeB, "hourly_rate")
	assert.Contains(t, insertTypeA, ":hourly_rate")
}
