package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunFileCommandsNeedNoDatabase(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, run(context.Background(), options{cmd: "create", dir: dir, name: "add refund holds"}))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasSuffix(entries[0].Name(), "_add_refund_holds.sql"))

	require.NoError(t, run(context.Background(), options{cmd: "validate", dir: dir}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.sql"), []byte("SELECT 1;"), 0o644))
	require.Error(t, run(context.Background(), options{cmd: "validate", dir: dir}))
}

func TestRunRejectsBadArguments(t *testing.T) {
	err := run(context.Background(), options{cmd: "create", dir: t.TempDir()})
	require.ErrorContains(t, err, "-name")

	err = run(context.Background(), options{cmd: "version"})
	require.ErrorContains(t, err, "-version")

	err = run(context.Background(), options{cmd: "sideways"})
	require.ErrorContains(t, err, "unknown command")
}
