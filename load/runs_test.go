package load

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/paysync/db"
	"github.com/teranos/paysync/errors"
	testutil "github.com/teranos/paysync/internal/testing"
)

func TestRunStore(t *testing.T) {
	s := testutil.CreateTestDB(t)
	runs := NewRunStore(s)
	ctx := context.Background()
	start := time.Date(2023, 5, 1, 6, 0, 0, 0, time.UTC)

	run, err := runs.Start(ctx, "profile", 1, 3, start)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunRunning, run.Status)

	run.ClientOffset = 2
	run.Page = 7
	run.Loaded = 40
	run.Skipped = 2
	require.NoError(t, runs.Progress(ctx, run))

	run.Failed = 1
	require.NoError(t, runs.Finish(ctx, run, RunFailed, errors.New("token exchange failed"), start.Add(time.Hour)))

	later, err := runs.Start(ctx, "check", 0, 0, start.Add(2*time.Hour))
	require.NoError(t, err)

	recent, err := runs.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, later.ID, recent[0].ID, "newest first")

	got := recent[1]
	assert.Equal(t, "profile", got.Mode)
	assert.Equal(t, RunFailed, got.Status)
	assert.Equal(t, 1, got.BeginClientOffset)
	assert.Equal(t, 3, got.BeginPage)
	assert.Equal(t, 2, got.ClientOffset)
	assert.Equal(t, 7, got.Page)
	assert.Equal(t, 40, got.Loaded)
	assert.Equal(t, 2, got.Skipped)
	assert.Equal(t, 1, got.Failed)
	assert.True(t, got.FinishedAt.Valid)
	assert.Equal(t, "token exchange failed", got.Error.String)

	limited, err := runs.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRunStore_SessionLostAfterFailedReconnect(t *testing.T) {
	base := testutil.CreateTestDB(t)
	dials := 0
	session := db.NewSession(base.DB(), func(ctx context.Context) (*sqlx.DB, error) {
		dials++
		return nil, errors.New("database unreachable")
	})
	runs := NewRunStore(session)
	ctx := context.Background()
	start := time.Date(2023, 5, 1, 6, 0, 0, 0, time.UTC)

	run, err := runs.Start(ctx, "check", 0, 0, start)
	require.NoError(t, err)

	require.Error(t, session.Reconnect(ctx))
	require.Nil(t, session.DB())

	err = runs.Progress(ctx, run)
	assert.True(t, errors.Is(err, db.ErrSessionClosed), "got %v", err)

	err = runs.Finish(ctx, run, RunFailed, nil, start.Add(time.Minute))
	assert.True(t, errors.Is(err, db.ErrSessionClosed), "got %v", err)

	_, err = runs.Recent(ctx, 5)
	assert.True(t, errors.Is(err, db.ErrSessionClosed), "got %v", err)

	_, err = runs.Start(ctx, "check", 0, 0, start)
	assert.True(t, errors.Is(err, db.ErrSessionClosed), "got %v", err)

	// One dial from the explicit Reconnect, then one per run log call
	assert.Equal(t, 5, dials)
}
