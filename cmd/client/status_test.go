package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusCmdReportsAddedFile(t *testing.T) {
	localDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "a.txt"), []byte("hi"), 0o644))

	cmd := newStatusCmd()
	cmd.Flags().AddFlagSet(newTestClientCmd(localDir, "127.0.0.1:1").Flags())
	cmd.SetContext(context.Background())
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, cmd.RunE(cmd, nil))
	require.Contains(t, buf.String(), "added")
	require.Contains(t, buf.String(), "a.txt")
}

func TestStatusCmdReportsNothingToSyncOnEmptyDir(t *testing.T) {
	localDir := t.TempDir()

	cmd := newStatusCmd()
	cmd.Flags().AddFlagSet(newTestClientCmd(localDir, "127.0.0.1:1").Flags())
	cmd.SetContext(context.Background())
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, cmd.RunE(cmd, nil))
	require.Contains(t, buf.String(), "nothing to sync")
}
