package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	for _, jsonOutput := range []bool{true, false} {
		Logger = nil
		JSONOutput = false

		require.NoError(t, Initialize(jsonOutput))
		assert.NotNil(t, Logger)
		assert.Equal(t, jsonOutput, JSONOutput)
	}
	Logger = zap.NewNop().Sugar()
}

func TestInitializeRunWritesPerRunFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	now := time.Date(2023, 5, 1, 6, 30, 0, 0, time.UTC)

	path, err := InitializeRun("check", dir, true, zapcore.InfoLevel, now)
	require.NoError(t, err)
	t.Cleanup(func() {
		Logger = zap.NewNop().Sugar()
		RunLogPath = ""
	})

	assert.Equal(t, filepath.Join(dir, "check-2023-05-01-06-30.log"), path)
	assert.Equal(t, path, RunLogPath)

	Infow("run started", FieldClientID, "83")
	Cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, `"msg":"run started"`), line)
	assert.True(t, strings.Contains(line, `"mode":"check"`), line)
	assert.True(t, strings.Contains(line, `"client_id":"83"`), line)
}

func TestFieldsFromContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithComponent(ctx, "load")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{FieldRunID, "run-1", FieldComponent, "load"}, fields)
	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewNop().Sugar()
	assert.Same(t, l, OrNop(l))
}
