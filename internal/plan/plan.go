// Package plan implements the Planner (spec.md §4.3): a pure function over
// two state snapshots that emits an ordered list of sync actions and a
// conflict flag. It performs no I/O, which is what makes it exhaustively
// table-testable (see DESIGN NOTES "Plan purity").
package plan

import (
	"sort"

	"github.com/jelasin/gosync/internal/state"
)

// Mode selects push or pull reconciliation semantics.
type Mode string

const (
	Push Mode = "push"
	Pull Mode = "pull"
)

// Action is the operation a SyncItem represents.
type Action string

const (
	Upload       Action = "UPLOAD"
	Download     Action = "DOWNLOAD"
	DeleteLocal  Action = "DELETE_LOCAL"
	DeleteRemote Action = "DELETE_REMOTE"
	Conflict     Action = "CONFLICT"
)

// SyncItem is one path's planned action, with the reason(s) it was chosen.
type SyncItem struct {
	Path    string
	Action  Action
	Reasons []string
}

// Result is the Planner's full output for one session.
type Result struct {
	Items       []SyncItem
	HasConflict bool
}

// Compute is the pure Planner entry point. local and remote are transport
// snapshots (path -> FileEntry, including tombstones). baseVersion is the
// local party's last-known server version; remoteVersion is the server's
// current sync_version. mode selects push or pull truth tables.
//
// Compute never mutates its inputs and returns the same Result for the same
// inputs every time (spec.md §8 "plan is a pure function of its inputs").
func Compute(local, remote map[string]state.FileEntry, baseVersion, remoteVersion int64, mode Mode) Result {
	paths := make(map[string]bool, len(local)+len(remote))
	for p := range local {
		paths[p] = true
	}
	for p := range remote {
		paths[p] = true
	}

	diverged := baseVersion < remoteVersion

	var items []SyncItem
	for path := range paths {
		l, hasL := local[path]
		r, hasR := remote[path]

		var item *SyncItem
		if mode == Push {
			item = planPush(path, l, hasL, r, hasR, diverged)
		} else {
			item = planPull(path, l, hasL, r, hasR)
		}
		if item != nil {
			items = append(items, *item)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })

	hasConflict := false
	for _, it := range items {
		if it.Action == Conflict {
			hasConflict = true
			break
		}
	}

	return Result{Items: items, HasConflict: hasConflict}
}

func planPush(path string, l state.FileEntry, hasL bool, r state.FileEntry, hasR bool, diverged bool) *SyncItem {
	lActive := hasL && l.Status == state.StatusActive
	lDeleted := hasL && l.Status == state.StatusDeleted
	rActive := hasR && r.Status == state.StatusActive
	rDeleted := hasR && r.Status == state.StatusDeleted

	switch {
	case lActive && !hasR:
		return &SyncItem{Path: path, Action: Upload, Reasons: []string{"new local file, absent remotely"}}

	case !hasL && rActive:
		if diverged {
			return &SyncItem{Path: path, Action: Conflict, Reasons: []string{"remote has new file unseen locally"}}
		}
		return nil

	case lActive && rActive:
		if l.Digest == r.Digest {
			return nil
		}
		if diverged && r.Version > l.Version {
			return &SyncItem{Path: path, Action: Conflict, Reasons: []string{"both sides modified"}}
		}
		return &SyncItem{Path: path, Action: Upload, Reasons: []string{"content differs, local wins"}}

	case lActive && rDeleted:
		if l.Version > r.Version {
			return &SyncItem{Path: path, Action: Upload, Reasons: []string{"resurrect: local modified after remote delete"}}
		}
		return &SyncItem{Path: path, Action: Conflict, Reasons: []string{"local modified remote-deleted"}}

	case lDeleted && rActive:
		if l.Version > r.Version {
			return &SyncItem{Path: path, Action: DeleteRemote, Reasons: []string{"local delete is newer"}}
		}
		if diverged {
			return &SyncItem{Path: path, Action: Conflict, Reasons: []string{"local deleted remote-modified"}}
		}
		return &SyncItem{Path: path, Action: DeleteRemote, Reasons: []string{"local delete, remote unchanged"}}

	case lDeleted && (rDeleted || !hasR):
		return nil
	}

	return nil
}

func planPull(path string, l state.FileEntry, hasL bool, r state.FileEntry, hasR bool) *SyncItem {
	lActive := hasL && l.Status == state.StatusActive
	lDeleted := hasL && l.Status == state.StatusDeleted
	rActive := hasR && r.Status == state.StatusActive
	rDeleted := hasR && r.Status == state.StatusDeleted

	switch {
	case !hasL && rActive:
		return &SyncItem{Path: path, Action: Download, Reasons: []string{"new remote file"}}

	case lActive && rActive:
		if l.Digest == r.Digest {
			return nil
		}
		return &SyncItem{Path: path, Action: Download, Reasons: []string{"content differs, remote wins"}}

	case lDeleted && rActive:
		return &SyncItem{Path: path, Action: Download, Reasons: []string{"resurrect: remote re-created a locally-deleted path"}}

	case lActive && rDeleted:
		return &SyncItem{Path: path, Action: DeleteLocal, Reasons: []string{"remote deleted"}}

	case lDeleted && rDeleted:
		return nil

	case (lActive || lDeleted) && !hasR:
		return nil
	}

	return nil
}
