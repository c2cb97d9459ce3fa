package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/version"
)

func TestVersionCommand_JSON(t *testing.T) {
	var out bytes.Buffer
	VersionCmd.SetOut(&out)
	require.NoError(t, VersionCmd.Flags().Set("json", "true"))
	t.Cleanup(func() {
		_ = VersionCmd.Flags().Set("json", "false")
		VersionCmd.SetOut(nil)
	})

	require.NoError(t, VersionCmd.RunE(VersionCmd, nil))

	var info version.Info
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, version.Get().Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestRunCommand_RejectsBadArguments(t *testing.T) {
	err := RunCmd.RunE(RunCmd, []string{"payslips"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidMode))

	require.NoError(t, RunCmd.Flags().Set("begin-at", "-1"))
	t.Cleanup(func() { _ = RunCmd.Flags().Set("begin-at", "0") })

	err = RunCmd.RunE(RunCmd, []string{"profile"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
