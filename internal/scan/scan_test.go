package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jelasin/gosync/internal/state"
)

func TestSnapshotHashesNewFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	snap, err := Snapshot(root, nil, Options{})
	require.NoError(t, err)

	entry, ok := snap["a.txt"]
	require.True(t, ok)
	require.Equal(t, int64(1), entry.Version)
	require.Equal(t, state.StatusActive, entry.Status)
}

func TestSnapshotSkipsHiddenByDefault(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "config"), []byte("x"), 0o644))

	snap, err := Snapshot(root, nil, Options{})
	require.NoError(t, err)
	require.Empty(t, snap)
}

func TestSnapshotIncludeHidden(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))

	snap, err := Snapshot(root, nil, Options{IncludeHidden: true})
	require.NoError(t, err)
	_, ok := snap[".hidden"]
	require.True(t, ok)
}

func TestSnapshotExcludePatternLeavesFileOut(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("keep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.log"), []byte("skip"), 0o644))

	opts := Options{Exclude: NewExcludeMatcher([]string{"*.log"})}
	snap, err := Snapshot(root, nil, opts)
	require.NoError(t, err)

	_, kept := snap["keep.txt"]
	require.True(t, kept)
	_, excluded := snap["skip.log"]
	require.False(t, excluded)
}

func TestSnapshotNewlyExcludedPathIsNotTombstoned(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.log"), []byte("x"), 0o644))

	prev := map[string]state.FileEntry{
		"a.log": {Digest: "deadbeef", Version: 1, Status: state.StatusActive},
	}

	opts := Options{Exclude: NewExcludeMatcher([]string{"*.log"})}
	snap, err := Snapshot(root, prev, opts)
	require.NoError(t, err)

	entry, ok := snap["a.log"]
	require.True(t, ok)
	require.Equal(t, state.StatusActive, entry.Status)
	require.Equal(t, int64(1), entry.Version)
}

func TestSnapshotTombstonesDeletedFile(t *testing.T) {
	root := t.TempDir()
	prev := map[string]state.FileEntry{
		"gone.txt": {Digest: "abc", Version: 1, Status: state.StatusActive},
	}

	snap, err := Snapshot(root, prev, Options{})
	require.NoError(t, err)

	entry, ok := snap["gone.txt"]
	require.True(t, ok)
	require.Equal(t, state.StatusDeleted, entry.Status)
	require.Equal(t, int64(2), entry.Version)
}

func TestEmptyDirsReportsDeepestOnly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "nested"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "withfile"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "withfile", "a.txt"), []byte("x"), 0o644))

	dirs, err := EmptyDirs(root, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"empty/nested"}, dirs)
}

func TestEmptyDirsSkipsExcludedSubtree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cache"), 0o755))

	opts := Options{Exclude: NewExcludeMatcher([]string{"cache"})}
	dirs, err := EmptyDirs(root, opts)
	require.NoError(t, err)
	require.Empty(t, dirs)
}

func TestClassifyBucketsChanges(t *testing.T) {
	prev := map[string]state.FileEntry{
		"same.txt":     {Digest: "aaa", Version: 1, Status: state.StatusActive},
		"changed.txt":  {Digest: "bbb", Version: 1, Status: state.StatusActive},
		"removed.txt":  {Digest: "ccc", Version: 1, Status: state.StatusActive},
		"restored.txt": {Digest: "", Version: 2, Status: state.StatusDeleted},
	}
	snap := map[string]state.FileEntry{
		"same.txt":     {Digest: "aaa", Version: 1, Status: state.StatusActive},
		"changed.txt":  {Digest: "bbb2", Version: 2, Status: state.StatusActive},
		"removed.txt":  {Digest: "", Version: 2, Status: state.StatusDeleted},
		"restored.txt": {Digest: "ddd", Version: 3, Status: state.StatusActive},
		"new.txt":      {Digest: "eee", Version: 1, Status: state.StatusActive},
	}

	got := Classify(snap, prev)
	require.Equal(t, Unchanged, got["same.txt"])
	require.Equal(t, Modified, got["changed.txt"])
	require.Equal(t, Deleted, got["removed.txt"])
	require.Equal(t, Added, got["restored.txt"])
	require.Equal(t, Added, got["new.txt"])
}
