package transfer

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jelasin/gosync/internal/cryptoutil"
)

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestPrepareWholeBodyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeTempFile(t, dir, "a.txt", []byte("hello world"))

	p, err := Prepare(src, "a.txt", 1, PrepareOptions{})
	require.NoError(t, err)
	require.False(t, p.Meta.Streaming)
	require.Equal(t, "a.txt", p.Meta.Path)
	require.False(t, p.Meta.Encrypted)
	require.False(t, p.Meta.Compressed)

	var buf bytes.Buffer
	require.NoError(t, SendBody(&buf, p, src, nil))

	destPath := filepath.Join(dir, "out", "a.txt")
	require.NoError(t, Receive(&buf, p.Meta, destPath, nil, nil))

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestPrepareCompressible(t *testing.T) {
	dir := t.TempDir()
	data := []byte(strings.Repeat("abcdefgh", 2048))
	src := writeTempFile(t, dir, "big.txt", data)

	p, err := Prepare(src, "big.txt", 1, PrepareOptions{CompressPref: true})
	require.NoError(t, err)
	require.True(t, p.Meta.Compressed)
	require.Less(t, len(p.Body), len(data))

	var buf bytes.Buffer
	require.NoError(t, SendBody(&buf, p, src, nil))

	destPath := filepath.Join(dir, "out.txt")
	require.NoError(t, Receive(&buf, p.Meta, destPath, nil, nil))

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestPrepareIncompressibleStaysUncompressed(t *testing.T) {
	dir := t.TempDir()
	// Already-compressed-looking random bytes compress poorly.
	data := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(data)
	src := writeTempFile(t, dir, "rand.bin", data)

	p, err := Prepare(src, "rand.bin", 1, PrepareOptions{CompressPref: true})
	require.NoError(t, err)
	require.False(t, p.Meta.Compressed)
}

func TestPrepareEncrypted(t *testing.T) {
	dir := t.TempDir()
	src := writeTempFile(t, dir, "secret.txt", []byte("top secret payload"))

	key, err := cryptoutil.GenerateKey()
	require.NoError(t, err)

	p, err := Prepare(src, "secret.txt", 1, PrepareOptions{Key: key})
	require.NoError(t, err)
	require.True(t, p.Meta.Encrypted)
	require.NotEqual(t, "top secret payload", string(p.Body))

	var buf bytes.Buffer
	require.NoError(t, SendBody(&buf, p, src, nil))

	destPath := filepath.Join(dir, "decrypted.txt")
	require.NoError(t, Receive(&buf, p.Meta, destPath, key, nil))

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, "top secret payload", string(got))
}

func TestPrepareStreamingForLargeFile(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte{0x42}, WholeBodyThreshold+1024)
	src := writeTempFile(t, dir, "huge.bin", data)

	p, err := Prepare(src, "huge.bin", 1, PrepareOptions{})
	require.NoError(t, err)
	require.True(t, p.Meta.Streaming)
	require.Nil(t, p.Body)
	require.Equal(t, int64(len(data)), p.Meta.TransferSize)

	var buf bytes.Buffer
	require.NoError(t, SendBody(&buf, p, src, nil))
	require.Equal(t, len(data), buf.Len())
}

func TestPrepareLargeFileForcesWholeBodyWhenEncrypted(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte{0x24}, WholeBodyThreshold+1024)
	src := writeTempFile(t, dir, "huge-enc.bin", data)

	key, err := cryptoutil.GenerateKey()
	require.NoError(t, err)

	p, err := Prepare(src, "huge-enc.bin", 1, PrepareOptions{Key: key})
	require.NoError(t, err)
	require.False(t, p.Meta.Streaming)
	require.True(t, p.Meta.Encrypted)
}

func TestReceiveHashMismatchUnlinksPartialFile(t *testing.T) {
	dir := t.TempDir()
	src := writeTempFile(t, dir, "a.txt", []byte("hello world"))

	p, err := Prepare(src, "a.txt", 1, PrepareOptions{})
	require.NoError(t, err)
	p.Meta.Hash = "0000000000000000000000000000000"

	var buf bytes.Buffer
	require.NoError(t, SendBody(&buf, p, src, nil))

	destPath := filepath.Join(dir, "bad.txt")
	err = Receive(&buf, p.Meta, destPath, nil, nil)
	require.ErrorIs(t, err, ErrHashMismatch)

	_, statErr := os.Stat(destPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestReceiveStreamingHashMismatchUnlinksPartialFile(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte{0x11}, WholeBodyThreshold+1024)
	src := writeTempFile(t, dir, "huge.bin", data)

	p, err := Prepare(src, "huge.bin", 1, PrepareOptions{})
	require.NoError(t, err)
	p.Meta.Hash = "bogus"

	var buf bytes.Buffer
	require.NoError(t, SendBody(&buf, p, src, nil))

	destPath := filepath.Join(dir, "huge-out.bin")
	err = Receive(&buf, p.Meta, destPath, nil, nil)
	require.ErrorIs(t, err, ErrHashMismatch)

	_, statErr := os.Stat(destPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestSendBodyProgressCallback(t *testing.T) {
	dir := t.TempDir()
	src := writeTempFile(t, dir, "a.txt", bytes.Repeat([]byte{'x'}, MaxChunkSize*3+17))

	p, err := Prepare(src, "a.txt", 1, PrepareOptions{})
	require.NoError(t, err)

	var calls int
	var last int64
	progress := func(sent, total int64) {
		calls++
		last = sent
		require.Equal(t, p.Meta.TransferSize, total)
	}

	var buf bytes.Buffer
	require.NoError(t, SendBody(&buf, p, src, progress))
	require.Greater(t, calls, 0)
	require.Equal(t, p.Meta.TransferSize, last)
}
