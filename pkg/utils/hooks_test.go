package utils

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func TestExecuteHooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell hooks are not supported on windows")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.txt")

	writeScript(t, dir, "20-second.sh", `echo "second $SYNC_CREATES" >> "$OUT"`)
	writeScript(t, dir, "10-first.sh", `echo "first" >> "$OUT"`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o644))

	err := ExecuteHooks(context.Background(), dir, []string{"OUT=" + out, "SYNC_CREATES=2"}, logger)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond 2\n", string(data))
}

func TestExecuteHooks_StopsOnFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell hooks are not supported on windows")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "ran")

	writeScript(t, dir, "1-fail.sh", "exit 3")
	writeScript(t, dir, "2-never.sh", `touch "`+marker+`"`)

	err := ExecuteHooks(context.Background(), dir, nil, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1-fail.sh")
	assert.NoFileExists(t, marker)
}

func TestExecuteHooks_MissingDir(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.NoError(t, ExecuteHooks(context.Background(), filepath.Join(t.TempDir(), "nope"), nil, logger))
}

func TestHookEnv(t *testing.T) {
	env := HookEnv("SYNC_", map[string]interface{}{"creates": 2, "dry_run": false})
	assert.Equal(t, []string{"SYNC_CREATES=2", "SYNC_DRY_RUN=false"}, env)
}
