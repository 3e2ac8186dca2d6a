package cryptoutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	sealed, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	decrypted, err := Decrypt(key, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	sealed, err := Encrypt(key1, []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(key2, sealed)
	require.Error(t, err)
}

func TestSaveLoadKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gosync.key")

	key, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, SaveKey(path, key))

	loaded, err := LoadKey(path)
	require.NoError(t, err)
	require.Equal(t, key, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, ".key", filepath.Ext(path))
	require.Equal(t, uint32(0o600), uint32(info.Mode().Perm()))
}
