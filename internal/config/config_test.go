package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	require.Equal(t, Defaults().Server.Port, cfg.Server.Port)
	require.Equal(t, Defaults().Sync.ChunkSize, cfg.Sync.ChunkSize)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := map[string]any{
		"server": map[string]any{"port": 9999, "sync_dir": "/tmp/x"},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, Defaults().Client.RetryCount, cfg.Client.RetryCount)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.Path = filepath.Join(t.TempDir(), "nested", "config.json")
	require.NoError(t, cfg.Save())

	reloaded, err := Load(cfg.Path)
	require.NoError(t, err)
	require.Equal(t, cfg.Server.Port, reloaded.Server.Port)
}

func TestValidateServerRejectsBadPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 70000
	err := cfg.Validate(true)
	require.Error(t, err)
}

func TestValidateClientRequiresServerAddress(t *testing.T) {
	cfg := Defaults()
	cfg.Client.ServerAddress = ""
	err := cfg.Validate(false)
	require.Error(t, err)
}

func TestBindSetsDefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("GOSYNC_SERVER_PORT", "1234")

	v := viper.New()
	Bind(v, nil)
	require.Equal(t, 1234, v.GetInt("server.port"))
	require.Equal(t, Defaults().Sync.ChunkSize, v.GetInt("sync.chunk_size"))
}
