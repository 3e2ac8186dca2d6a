package state

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jelasin/gosync/internal/jsonutil"
	"github.com/jelasin/gosync/internal/pathutil"
)

// ErrMalformed is returned by Load when the state file exists but cannot be
// parsed. Per spec.md §4.1, a malformed file is never silently overwritten;
// the caller decides whether to proceed with an empty state.
var ErrMalformed = errors.New("state: malformed state file")

// Store owns the on-disk state file for one party (client or server) and
// serializes access to it. Reads and writes of the in-memory SyncState go
// through Store so callers never observe a half-written table.
//
// Per spec.md's DESIGN NOTES, the sync_version counter is guarded by a
// mutex distinct from the state-table mutex. Whenever both are needed,
// versionMu is acquired first; mu is never held while acquiring versionMu.
type Store struct {
	path string

	mu sync.Mutex
	s  *SyncState

	versionMu sync.Mutex
	version   int64
}

// Open loads the state file at path if present, or returns a Store seeded
// with a fresh SyncState otherwise. A malformed file is reported via the
// returned error but does not panic; the caller may choose to proceed with
// an empty state by checking errors.Is(err, ErrMalformed).
func Open(path string) (*Store, error) {
	st, err := Load(path)
	if err != nil && !errors.Is(err, ErrMalformed) {
		return nil, err
	}
	return &Store{path: path, s: st, version: st.SyncVersion}, err
}

// Load reads the state file if present; on missing or malformed files it
// returns an empty state with a freshly generated 8-char client ID.
func Load(path string) (*SyncState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewEmpty(pathutil.TokenHex(4)), nil
		}
		return NewEmpty(pathutil.TokenHex(4)), fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var s SyncState
	if err := jsonutil.Unmarshal(data, &s); err != nil {
		slog.Warn("state file is malformed, starting from empty state", "path", path, "error", err)
		return NewEmpty(pathutil.TokenHex(4)), fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if s.Files == nil {
		s.Files = make(map[string]FileEntry)
	}
	if s.ClientID == "" {
		s.ClientID = pathutil.TokenHex(4)
	}
	return &s, nil
}

// Save atomically persists state: write to a sibling temp file, fsync, then
// rename over the destination, so a crash mid-write never leaves a torn file.
func Save(path string, s *SyncState) error {
	if err := pathutil.EnsureParent(path); err != nil {
		return fmt.Errorf("state: ensure parent dir: %w", err)
	}

	data, err := jsonutil.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("state: open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("state: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: rename temp file: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the current state, safe to read without
// holding the Store's lock afterward.
func (st *Store) Snapshot() *SyncState {
	st.versionMu.Lock()
	defer st.versionMu.Unlock()
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.SyncVersion = st.version
	return st.s.Clone()
}

// Save persists the Store's current in-memory state to disk.
func (st *Store) Save() error {
	st.versionMu.Lock()
	defer st.versionMu.Unlock()
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.SyncVersion = st.version
	return Save(st.path, st.s)
}

// MarkDeleted replaces an active entry at path with a tombstone at
// version+1. No-op if path has no active entry.
func (st *Store) MarkDeleted(path string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	entry, ok := st.s.Files[path]
	if !ok || entry.Status != StatusActive {
		return
	}

	now := time.Now()
	st.s.Files[path] = FileEntry{
		Digest:    "",
		Size:      0,
		Modified:  now,
		Version:   entry.Version + 1,
		Status:    StatusDeleted,
		DeletedAt: &now,
	}
}

// MarkSynced installs entry verbatim at path, used by receivers after a
// verified download or upload.
func (st *Store) MarkSynced(path string, entry FileEntry) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Files[path] = entry
}

// ReplaceFiles swaps in a freshly scanned file table without touching the
// version counters, used by the server to absorb out-of-band changes to its
// own tree (including deletions, via carried-over tombstones) before
// planning a session.
func (st *Store) ReplaceFiles(files map[string]FileEntry) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Files = files
}

// CommitAfterSync replaces the file table with merged, sets BaseVersion and
// SyncVersion to serverVersion, and stamps LastSyncTime. Used by the client
// driver after a successful push or pull.
func (st *Store) CommitAfterSync(merged map[string]FileEntry, serverVersion int64) {
	st.versionMu.Lock()
	defer st.versionMu.Unlock()
	st.mu.Lock()
	defer st.mu.Unlock()

	st.version = serverVersion
	st.s.Files = merged
	st.s.BaseVersion = serverVersion
	st.s.SyncVersion = serverVersion
	st.s.LastSyncTime = time.Now()
}

// IncrementSyncVersion bumps the counter by one (server-side, on commit of a
// mutating session) and returns the new value. It touches only versionMu;
// callers that need the bump reflected on disk must also call Save.
func (st *Store) IncrementSyncVersion() int64 {
	st.versionMu.Lock()
	defer st.versionMu.Unlock()
	st.version++
	return st.version
}

// SyncVersion returns the current server version counter.
func (st *Store) SyncVersion() int64 {
	st.versionMu.Lock()
	defer st.versionMu.Unlock()
	return st.version
}

// StampSyncTime sets LastSyncTime to now, used by the server after a
// session commits regardless of whether it mutated the version counter.
func (st *Store) StampSyncTime() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.LastSyncTime = time.Now()
}

// Path returns the backing file path, mostly for logging.
func (st *Store) Path() string {
	return st.path
}
