package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"time"

	"github.com/jelasin/gosync/internal/pathutil"
	"github.com/jelasin/gosync/internal/plan"
	"github.com/jelasin/gosync/internal/scan"
	"github.com/jelasin/gosync/internal/state"
	"github.com/jelasin/gosync/internal/transfer"
	"github.com/jelasin/gosync/internal/wire"
)

// handler drives one accepted connection end to end: handshake, then a loop
// dispatching frames by command until the client disconnects or an
// unrecoverable transport error occurs.
type handler struct {
	coord     *Coordinator
	conn      net.Conn
	sessionID string

	clientID string

	// set by SYNC_REQUEST, consumed by SYNC_COMPLETE for retry-at-commit
	// conflict re-validation (spec.md DESIGN NOTES).
	mode        plan.Mode
	baseVersion int64
	planVersion int64
	clientState map[string]state.FileEntry
	uploaded    int
	deleted     int
}

func (h *handler) log() *slog.Logger {
	return slog.With("session", h.sessionID, "remote", h.conn.RemoteAddr())
}

func (h *handler) run(ctx context.Context) error {
	defer h.conn.Close()

	if err := h.handshake(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := h.conn.SetDeadline(time.Now().Add(h.coord.cfg.IdleTimeout)); err != nil {
			return fmt.Errorf("session: set deadline: %w", err)
		}

		frame, err := wire.ReadFrame(h.conn)
		if err != nil {
			return fmt.Errorf("session: read frame: %w", err)
		}

		if err := h.dispatch(frame); err != nil {
			h.log().Warn("command failed", "cmd", frame.Cmd, "error", err)
			h.sendError("protocol", err.Error())
		}
	}
}

func (h *handler) handshake() error {
	if err := h.conn.SetDeadline(time.Now().Add(h.coord.cfg.IdleTimeout)); err != nil {
		return fmt.Errorf("session: set deadline: %w", err)
	}

	frame, err := wire.ReadFrame(h.conn)
	if err != nil {
		return fmt.Errorf("session: read hello: %w", err)
	}
	if frame.Cmd != wire.CmdHello {
		return fmt.Errorf("session: expected HELLO, got %s", frame.Cmd)
	}

	var req wire.HelloRequest
	if err := frame.DecodeJSON(&req); err != nil {
		return fmt.Errorf("session: decode hello: %w", err)
	}

	serverEncrypted := len(h.coord.cfg.Key) > 0
	if req.Encrypted != serverEncrypted {
		h.sendError("protocol", "mixed encryption configuration between client and server")
		return fmt.Errorf("session: rejected mixed-encryption handshake from %s", req.ClientID)
	}

	h.clientID = req.ClientID
	h.log().Info("session handshake", "client", req.ClientID, "encrypted", req.Encrypted)

	return wire.WriteJSON(h.conn, wire.CmdHello, wire.HelloResponse{
		Name:          "gosync",
		Version:       "1",
		SyncDir:       h.coord.cfg.RootDir,
		ServerVersion: h.coord.store.SyncVersion(),
	})
}

func (h *handler) dispatch(frame *wire.Frame) error {
	switch frame.Cmd {
	case wire.CmdGetState:
		return h.handleGetState()
	case wire.CmdSyncRequest:
		return h.handleSyncRequest(frame)
	case wire.CmdFileData:
		return h.handleFileData(frame)
	case wire.CmdDeleteFile:
		return h.handleDeleteFile(frame)
	case wire.CmdCreateDir:
		return h.handleCreateDir(frame)
	case wire.CmdSyncComplete:
		return h.handleSyncComplete(frame)
	default:
		return fmt.Errorf("session: unknown command %s", frame.Cmd)
	}
}

func (h *handler) handleGetState() error {
	snap := h.coord.store.Snapshot()
	return wire.WriteJSON(h.conn, wire.CmdOK, wire.GetStateResponse{
		Files:   snap.Files,
		Version: snap.SyncVersion,
	})
}

// handleSyncRequest rescans the server's own tree to absorb any out-of-band
// changes (spec.md §4.6), computes the plan against the client's reported
// state, and replies with either CONFLICT or a direction-specific plan.
// For a pull, it immediately drives the download side of that plan (empty
// directories, then files) itself, since the server is the sender in that
// direction.
func (h *handler) handleSyncRequest(frame *wire.Frame) error {
	var req wire.SyncRequest
	if err := frame.DecodeJSON(&req); err != nil {
		return fmt.Errorf("session: decode sync_request: %w", err)
	}

	prev := h.coord.store.Snapshot().Files
	fresh, err := scan.Snapshot(h.coord.cfg.RootDir, prev, h.coord.cfg.ScanOptions)
	if err != nil {
		return fmt.Errorf("session: rescan: %w", err)
	}
	h.coord.store.ReplaceFiles(fresh)

	mode := plan.Push
	if req.Mode == string(plan.Pull) {
		mode = plan.Pull
	}

	serverVersion := h.coord.store.SyncVersion()

	h.mode = mode
	h.baseVersion = req.BaseVersion
	h.planVersion = serverVersion
	h.clientState = req.ClientState
	h.uploaded = 0
	h.deleted = 0

	// spec.md §4.4's mandatory pre-plan conflict gate: when the client is
	// behind the server, any path that is active-active-with-different-
	// digests, active-vs-deleted, or deleted-vs-active rejects the whole
	// session before the Planner's own version-sensitive rules ever run.
	if mode == plan.Push && req.BaseVersion < serverVersion {
		if conflicts := coarsePrePlanConflicts(req.ClientState, fresh); len(conflicts) > 0 {
			return h.sendConflict(serverVersion, conflicts, "version divergence with overlapping changes, pull before pushing again")
		}
	}

	result := plan.Compute(req.ClientState, fresh, req.BaseVersion, serverVersion, mode)

	if result.HasConflict {
		return h.sendConflict(serverVersion, conflictPaths(result), "version divergence with overlapping changes, pull before pushing again")
	}

	if mode == plan.Push {
		var upload, del []string
		for _, item := range result.Items {
			switch item.Action {
			case plan.Upload:
				upload = append(upload, item.Path)
			case plan.DeleteRemote:
				del = append(del, item.Path)
			}
		}
		return wire.WriteJSON(h.conn, wire.CmdOK, wire.PushPlanResponse{
			ServerVersion: serverVersion,
			FilesToUpload: upload,
			FilesToDelete: del,
		})
	}

	var download, del []string
	for _, item := range result.Items {
		switch item.Action {
		case plan.Download:
			download = append(download, item.Path)
		case plan.DeleteLocal:
			del = append(del, item.Path)
		}
	}
	dirs, err := scan.EmptyDirs(h.coord.cfg.RootDir, h.coord.cfg.ScanOptions)
	if err != nil {
		return fmt.Errorf("session: find empty dirs: %w", err)
	}
	if err := wire.WriteJSON(h.conn, wire.CmdOK, wire.PullPlanResponse{
		ServerVersion:   serverVersion,
		FilesToDownload: download,
		FilesToDelete:   del,
		DirsToCreate:    dirs,
	}); err != nil {
		return err
	}
	return h.driveDownloads(dirs, download)
}

func (h *handler) sendConflict(serverVersion int64, paths []string, message string) error {
	return wire.WriteJSON(h.conn, wire.CmdConflict, wire.ConflictResponse{
		ServerVersion: serverVersion,
		Conflicts:     paths,
		Message:       message,
	})
}

// conflictPaths extracts the offending paths from a plan.Result that has
// HasConflict set.
func conflictPaths(result plan.Result) []string {
	var paths []string
	for _, item := range result.Items {
		if item.Action == plan.Conflict {
			paths = append(paths, item.Path)
		}
	}
	return paths
}

// coarsePrePlanConflicts implements spec.md §4.4's server-side pre-plan
// conflict detection: a version-agnostic gate, distinct from the Planner's
// own per-path version comparisons, that rejects the whole push session if
// any path shows active-active-with-different-digests, active-vs-deleted,
// or deleted-vs-active between the client's reported state and the server's
// current tree.
func coarsePrePlanConflicts(local, remote map[string]state.FileEntry) []string {
	paths := make(map[string]bool, len(local)+len(remote))
	for p := range local {
		paths[p] = true
	}
	for p := range remote {
		paths[p] = true
	}

	var out []string
	for path := range paths {
		l, hasL := local[path]
		r, hasR := remote[path]
		if !hasL || !hasR {
			continue
		}
		lActive := l.Status == state.StatusActive
		rActive := r.Status == state.StatusActive

		switch {
		case lActive && rActive:
			if l.Digest != r.Digest {
				out = append(out, path)
			}
		case lActive != rActive:
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// driveDownloads is the server-as-sender half of a pull: it recreates empty
// directories first, then for each path the client needs, sends FILE_DATA
// and awaits the client's OK. Per spec.md §4.4 step 4, the client deletes
// its own DELETE_LOCAL paths without a round-trip, so no DELETE_FILE frame
// is sent for them; the client already has that list in PullPlanResponse.
func (h *handler) driveDownloads(dirs, download []string) error {
	for _, wirePath := range dirs {
		if err := wire.WriteJSON(h.conn, wire.CmdCreateDir, wire.CreateDirRequest{Path: wirePath}); err != nil {
			return err
		}
		if err := h.awaitOK(); err != nil {
			return fmt.Errorf("session: peer failed to create dir %s: %w", wirePath, err)
		}
	}

	for _, wirePath := range download {
		srcPath, err := pathutil.ResolveUnder(h.coord.cfg.RootDir, wirePath)
		if err != nil {
			return err
		}

		snap := h.coord.store.Snapshot()
		entry, ok := snap.Files[wirePath]
		if !ok {
			continue
		}

		prepared, err := transfer.Prepare(srcPath, wirePath, entry.Version, transfer.PrepareOptions{
			Key:          h.coord.cfg.Key,
			CompressPref: true,
		})
		if err != nil {
			return fmt.Errorf("session: prepare %s: %w", wirePath, err)
		}

		if err := wire.WriteJSON(h.conn, wire.CmdFileData, prepared.Meta); err != nil {
			return err
		}
		if err := h.awaitOK(); err != nil {
			return fmt.Errorf("session: peer rejected file_data for %s: %w", wirePath, err)
		}
		if err := transfer.SendBody(h.conn, prepared, srcPath, nil); err != nil {
			return fmt.Errorf("session: send body %s: %w", wirePath, err)
		}
		if err := h.awaitOK(); err != nil {
			return fmt.Errorf("session: peer failed to verify %s: %w", wirePath, err)
		}
	}

	return nil
}

// awaitOK reads the next frame and requires it to be an OK.
func (h *handler) awaitOK() error {
	if err := h.conn.SetDeadline(time.Now().Add(h.coord.cfg.IdleTimeout)); err != nil {
		return err
	}
	frame, err := wire.ReadFrame(h.conn)
	if err != nil {
		return err
	}
	if frame.Cmd != wire.CmdOK {
		return fmt.Errorf("expected OK, got %s", frame.Cmd)
	}
	return nil
}

// handleFileData is the receiver side: the client is pushing a file to us.
func (h *handler) handleFileData(frame *wire.Frame) error {
	var meta wire.FileDataMeta
	if err := frame.DecodeJSON(&meta); err != nil {
		return fmt.Errorf("session: decode file_data: %w", err)
	}

	if err := wire.WriteFrame(h.conn, wire.CmdOK, nil); err != nil {
		return err
	}

	destPath, err := pathutil.ResolveUnder(h.coord.cfg.RootDir, meta.Path)
	if err != nil {
		h.sendError("protocol", err.Error())
		return err
	}

	lock := h.coord.lockPath(meta.Path)
	lock.Lock()
	defer lock.Unlock()

	if err := transfer.Receive(h.conn, meta, destPath, h.coord.cfg.Key, nil); err != nil {
		h.sendError("integrity", err.Error())
		return fmt.Errorf("session: receive %s: %w", meta.Path, err)
	}

	h.coord.store.MarkSynced(meta.Path, state.FileEntry{
		Digest:   meta.Hash,
		Size:     meta.Size,
		Modified: meta.Modified,
		Version:  meta.Version,
		Status:   state.StatusActive,
	})
	h.uploaded++

	return wire.WriteFrame(h.conn, wire.CmdOK, nil)
}

func (h *handler) handleDeleteFile(frame *wire.Frame) error {
	var req wire.DeleteFileRequest
	if err := frame.DecodeJSON(&req); err != nil {
		return fmt.Errorf("session: decode delete_file: %w", err)
	}

	destPath, err := pathutil.ResolveUnder(h.coord.cfg.RootDir, req.Path)
	if err != nil {
		h.sendError("protocol", err.Error())
		return err
	}

	lock := h.coord.lockPath(req.Path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		h.sendError("io", err.Error())
		return fmt.Errorf("session: remove %s: %w", req.Path, err)
	}
	h.coord.store.MarkDeleted(req.Path)
	h.deleted++

	return wire.WriteFrame(h.conn, wire.CmdOK, nil)
}

func (h *handler) handleCreateDir(frame *wire.Frame) error {
	var req wire.CreateDirRequest
	if err := frame.DecodeJSON(&req); err != nil {
		return fmt.Errorf("session: decode create_dir: %w", err)
	}

	destPath, err := pathutil.ResolveUnder(h.coord.cfg.RootDir, req.Path)
	if err != nil {
		h.sendError("protocol", err.Error())
		return err
	}

	if err := os.MkdirAll(destPath, 0o755); err != nil {
		h.sendError("io", err.Error())
		return fmt.Errorf("session: mkdir %s: %w", req.Path, err)
	}

	return wire.WriteFrame(h.conn, wire.CmdOK, nil)
}

// handleSyncComplete is where the version counter is (maybe) bumped. Per
// spec.md's retry-at-commit hardening note, it re-validates for conflicts
// against the live state if another session committed since this one's
// SYNC_REQUEST, rather than trusting the plan computed earlier unconditionally.
func (h *handler) handleSyncComplete(frame *wire.Frame) error {
	var req wire.SyncCompleteRequest
	if err := frame.DecodeJSON(&req); err != nil {
		return fmt.Errorf("session: decode sync_complete: %w", err)
	}

	// Only the server-applied counters count as mutation: req.Uploaded/
	// req.Deleted also include the client's own local DELETE_LOCAL count in
	// pull mode, which never touches the server's tree or state (spec.md
	// §4.6, §8 "sessions that mutate nothing: version unchanged").
	mutated := h.uploaded > 0 || h.deleted > 0

	if mutated && h.mode == plan.Push {
		currentVersion := h.coord.store.SyncVersion()
		if currentVersion > h.planVersion {
			fresh := h.coord.store.Snapshot().Files
			recheck := plan.Compute(h.clientState, fresh, h.baseVersion, currentVersion, h.mode)
			if recheck.HasConflict {
				return h.sendConflict(currentVersion, conflictPaths(recheck), "version divergence with overlapping changes, pull before pushing again")
			}
		}
	}

	newVersion := h.coord.store.SyncVersion()
	if mutated {
		newVersion = h.coord.store.IncrementSyncVersion()
	}
	h.coord.store.StampSyncTime()
	if err := h.coord.store.Save(); err != nil {
		return fmt.Errorf("session: persist state: %w", err)
	}

	return wire.WriteJSON(h.conn, wire.CmdOK, wire.SyncCompleteResponse{NewVersion: newVersion})
}

func (h *handler) sendError(kind, message string) {
	_ = wire.WriteJSON(h.conn, wire.CmdError, wire.ErrorResponse{Kind: kind, Message: message})
}
