package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/jelasin/gosync/internal/config"
)

func newTestCmd(dataDir string) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().StringP("config", "f", "", "")
	cmd.Flags().StringP("bind", "b", "", "")
	cmd.Flags().IntP("port", "p", 0, "")
	cmd.Flags().StringP("dataDir", "d", dataDir, "")
	cmd.Flags().StringP("key", "k", "", "")
	cmd.Flags().IntP("maxConnections", "m", 0, "")
	return cmd
}

func TestLoadConfigAppliesFlagsAndDefaults(t *testing.T) {
	dataDir := t.TempDir()
	cmd := newTestCmd(dataDir)
	require.NoError(t, cmd.Flags().Set("dataDir", dataDir))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, dataDir, cfg.Server.SyncDir)
	require.Equal(t, 8888, cfg.Server.Port)
}

func TestBuildCoordinatorConfigParsesIdleTimeout(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.SyncDir = t.TempDir()

	coordCfg, err := buildCoordinatorConfig(&cfg)
	require.NoError(t, err)
	require.Equal(t, cfg.Server.SyncDir, coordCfg.RootDir)
	require.Nil(t, coordCfg.Key)
}

func TestBuildCoordinatorConfigRejectsBadIdleTimeout(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.IdleTimeout = "not-a-duration"

	_, err := buildCoordinatorConfig(&cfg)
	require.Error(t, err)
}
