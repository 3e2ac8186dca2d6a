package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newTestClientCmd(localDir, addr string) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().StringP("config", "c", "", "")
	cmd.Flags().StringP("local", "l", localDir, "")
	cmd.Flags().StringP("server", "s", addr, "")
	cmd.Flags().StringP("key", "k", "", "")
	cmd.Flags().IntP("timeout", "", 5, "")
	cmd.Flags().IntP("retry", "", 0, "")
	return cmd
}

func TestLoadClientConfigAppliesFlags(t *testing.T) {
	localDir := t.TempDir()
	cmd := newTestClientCmd(localDir, "127.0.0.1:9999")
	require.NoError(t, cmd.Flags().Set("local", localDir))
	require.NoError(t, cmd.Flags().Set("server", "127.0.0.1:9999"))

	cfg, err := loadClientConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, localDir, cfg.Client.LocalDir)
	require.Equal(t, "127.0.0.1:9999", cfg.Client.ServerAddress)
}

func TestLoadClientConfigRejectsEmptyServerAddress(t *testing.T) {
	localDir := t.TempDir()
	cmd := newTestClientCmd(localDir, "")
	require.NoError(t, cmd.Flags().Set("local", localDir))
	require.NoError(t, cmd.Flags().Set("server", ""))

	_, err := loadClientConfig(cmd)
	require.Error(t, err)
}
