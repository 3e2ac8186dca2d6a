// Package state implements the State Store: the per-party file table with
// deletion tombstones and version counters described in spec.md §3 and §4.1.
package state

import (
	"time"
)

// Status is the lifecycle state of a FileEntry.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// FileEntry is a single path's record in a party's state table.
type FileEntry struct {
	Digest    string     `json:"hash"`
	Size      int64      `json:"size"`
	Modified  time.Time  `json:"modified"`
	Version   int64      `json:"version"`
	Status    Status     `json:"status"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsTombstone reports whether this entry records a deletion.
func (e FileEntry) IsTombstone() bool {
	return e.Status == StatusDeleted
}

// SyncState is the persisted per-party record described in spec.md §3.
type SyncState struct {
	Files        map[string]FileEntry `json:"files"`
	SyncVersion  int64                `json:"sync_version"`
	BaseVersion  int64                `json:"base_version"`
	ClientID     string               `json:"client_id"`
	LastSyncTime time.Time            `json:"last_sync_time"`
}

// NewEmpty returns an empty state carrying the given client ID.
func NewEmpty(clientID string) *SyncState {
	return &SyncState{
		Files:    make(map[string]FileEntry),
		ClientID: clientID,
	}
}

// Clone returns a deep copy of the state's file table, safe for a caller to
// mutate without racing a concurrent Store user.
func (s *SyncState) Clone() *SyncState {
	cp := &SyncState{
		Files:        make(map[string]FileEntry, len(s.Files)),
		SyncVersion:  s.SyncVersion,
		BaseVersion:  s.BaseVersion,
		ClientID:     s.ClientID,
		LastSyncTime: s.LastSyncTime,
	}
	for k, v := range s.Files {
		cp.Files[k] = v
	}
	return cp
}
