package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmptyState(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "sync_state.json"))
	require.NoError(t, err)
	require.NotEmpty(t, s.ClientID)
	require.Empty(t, s.Files)
}

func TestLoadMalformedFileReturnsEmptyStateAndError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync_state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s, err := Load(path)
	require.ErrorIs(t, err, ErrMalformed)
	require.NotNil(t, s)
	require.Empty(t, s.Files)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync_state.json")

	st, err := Open(path)
	require.NoError(t, err)

	st.MarkSynced("a.txt", FileEntry{Digest: "abc", Size: 3, Version: 1, Status: StatusActive})
	require.NoError(t, st.Save())

	reopened, err := Open(path)
	require.NoError(t, err)
	snap := reopened.Snapshot()
	require.Contains(t, snap.Files, "a.txt")
	require.Equal(t, "abc", snap.Files["a.txt"].Digest)
}

func TestMarkDeletedCreatesTombstone(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "sync_state.json"))
	require.NoError(t, err)

	st.MarkSynced("a.txt", FileEntry{Digest: "abc", Size: 3, Version: 1, Status: StatusActive})
	st.MarkDeleted("a.txt")

	snap := st.Snapshot()
	entry := snap.Files["a.txt"]
	require.True(t, entry.IsTombstone())
	require.Equal(t, int64(2), entry.Version)
	require.NotNil(t, entry.DeletedAt)
}

func TestMarkDeletedNoOpWhenPathMissing(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "sync_state.json"))
	require.NoError(t, err)

	st.MarkDeleted("missing.txt")
	snap := st.Snapshot()
	require.Empty(t, snap.Files)
}

func TestIncrementSyncVersion(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "sync_state.json"))
	require.NoError(t, err)

	require.Equal(t, int64(0), st.SyncVersion())
	require.Equal(t, int64(1), st.IncrementSyncVersion())
	require.Equal(t, int64(2), st.IncrementSyncVersion())
	require.Equal(t, int64(2), st.SyncVersion())

	require.NoError(t, st.Save())
	reopened, err := Open(st.Path())
	require.NoError(t, err)
	require.Equal(t, int64(2), reopened.SyncVersion())
}

func TestCommitAfterSync(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "sync_state.json"))
	require.NoError(t, err)

	merged := map[string]FileEntry{
		"a.txt": {Digest: "abc", Size: 3, Version: 1, Status: StatusActive},
	}
	st.CommitAfterSync(merged, 5)

	require.Equal(t, int64(5), st.SyncVersion())
	snap := st.Snapshot()
	require.Equal(t, int64(5), snap.BaseVersion)
	require.Equal(t, int64(5), snap.SyncVersion)
	require.Contains(t, snap.Files, "a.txt")
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewEmpty("client1")
	s.Files["a.txt"] = FileEntry{Digest: "x", Version: 1, Status: StatusActive}

	clone := s.Clone()
	clone.Files["a.txt"] = FileEntry{Digest: "y", Version: 2, Status: StatusActive}

	require.Equal(t, "x", s.Files["a.txt"].Digest)
	require.Equal(t, "y", clone.Files["a.txt"].Digest)
}
