package client

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jelasin/gosync/internal/pathutil"
	"github.com/jelasin/gosync/internal/plan"
	"github.com/jelasin/gosync/internal/scan"
	"github.com/jelasin/gosync/internal/state"
	"github.com/jelasin/gosync/internal/transfer"
	"github.com/jelasin/gosync/internal/wire"
)

// Pull rescans the local tree (so locally-made deletions are represented as
// tombstones; a path deleted locally but still active on the server is
// downloaded again, since the server wins on pull), asks the server to plan
// a pull, then
// receives whatever the server sends: the server is the sender for
// FILE_DATA and CREATE_DIR, while DELETE_LOCAL paths are applied directly
// out of the plan with no round-trip (spec.md §4.4 step 4).
func (c *Client) Pull(ctx context.Context, store *state.Store) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := store.Snapshot()
	local, err := scan.Snapshot(c.cfg.LocalRoot, prev.Files, c.cfg.ScanOptions)
	if err != nil {
		return nil, fmt.Errorf("client: scan local tree: %w", err)
	}

	s, err := c.dial(ctx, prev.ClientID)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if err := s.setDeadline(); err != nil {
		return nil, err
	}
	if err := wire.WriteJSON(s.conn, wire.CmdSyncRequest, wire.SyncRequest{
		Mode:        string(plan.Pull),
		ClientState: local,
		BaseVersion: prev.BaseVersion,
		ClientID:    prev.ClientID,
	}); err != nil {
		return nil, fmt.Errorf("client: send sync_request: %w", err)
	}

	frame, err := wire.ReadFrame(s.conn)
	if err != nil {
		return nil, fmt.Errorf("client: read plan: %w", err)
	}
	if frame.Cmd != wire.CmdOK {
		return nil, fmt.Errorf("client: unexpected reply to sync_request: %s", frame.Cmd)
	}

	var planResp wire.PullPlanResponse
	if err := frame.DecodeJSON(&planResp); err != nil {
		return nil, fmt.Errorf("client: decode pull plan: %w", err)
	}

	for _, wirePath := range planResp.DirsToCreate {
		if err := s.receiveCreateDir(c.cfg.LocalRoot, wirePath); err != nil {
			return nil, fmt.Errorf("client: create dir %s: %w", wirePath, err)
		}
	}

	for _, wirePath := range planResp.FilesToDownload {
		meta, err := s.receiveFile(c.cfg.LocalRoot, wirePath, c.cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("client: download %s: %w", wirePath, err)
		}
		local[wirePath] = state.FileEntry{
			Digest:   meta.Hash,
			Size:     meta.Size,
			Modified: meta.Modified,
			Version:  meta.Version,
			Status:   state.StatusActive,
		}
	}

	for _, wirePath := range planResp.FilesToDelete {
		if err := deleteLocal(c.cfg.LocalRoot, wirePath); err != nil {
			return nil, fmt.Errorf("client: delete %s: %w", wirePath, err)
		}
		prevVersion := local[wirePath].Version
		now := time.Now()
		local[wirePath] = state.FileEntry{
			Version:   prevVersion + 1,
			Status:    state.StatusDeleted,
			Modified:  now,
			DeletedAt: &now,
		}
	}

	newVersion, err := s.syncComplete(0, len(planResp.FilesToDelete))
	if err != nil {
		return nil, err
	}

	store.CommitAfterSync(local, newVersion)
	if err := store.Save(); err != nil {
		return nil, fmt.Errorf("client: save state: %w", err)
	}

	return &Result{
		Downloaded: planResp.FilesToDownload,
		Deleted:    planResp.FilesToDelete,
		NewVersion: newVersion,
	}, nil
}

// receiveFile awaits the server's FILE_DATA frame for one planned download,
// acknowledges it, receives the body, and acknowledges the verified write.
func (s *session) receiveFile(localRoot, wirePath string, key []byte) (*wire.FileDataMeta, error) {
	if err := s.setDeadline(); err != nil {
		return nil, err
	}
	frame, err := wire.ReadFrame(s.conn)
	if err != nil {
		return nil, err
	}
	if frame.Cmd != wire.CmdFileData {
		return nil, fmt.Errorf("expected FILE_DATA for %s, got %s", wirePath, frame.Cmd)
	}

	var meta wire.FileDataMeta
	if err := frame.DecodeJSON(&meta); err != nil {
		return nil, fmt.Errorf("decode file_data: %w", err)
	}

	if err := wire.WriteFrame(s.conn, wire.CmdOK, nil); err != nil {
		return nil, err
	}

	destPath, err := pathutil.ResolveUnder(localRoot, meta.Path)
	if err != nil {
		return nil, fmt.Errorf("reject file_data: %w", err)
	}
	if err := transfer.Receive(s.conn, meta, destPath, key, nil); err != nil {
		return nil, err
	}

	if err := wire.WriteFrame(s.conn, wire.CmdOK, nil); err != nil {
		return nil, err
	}
	return &meta, nil
}

// receiveCreateDir awaits the server's CREATE_DIR frame for one planned
// empty directory, validates the path, and creates it (with any missing
// parents) before acknowledging.
func (s *session) receiveCreateDir(localRoot, wirePath string) error {
	if err := s.setDeadline(); err != nil {
		return err
	}
	frame, err := wire.ReadFrame(s.conn)
	if err != nil {
		return err
	}
	if frame.Cmd != wire.CmdCreateDir {
		return fmt.Errorf("expected CREATE_DIR for %s, got %s", wirePath, frame.Cmd)
	}

	var req wire.CreateDirRequest
	if err := frame.DecodeJSON(&req); err != nil {
		return fmt.Errorf("decode create_dir: %w", err)
	}

	destPath, err := pathutil.ResolveUnder(localRoot, req.Path)
	if err != nil {
		return fmt.Errorf("reject create_dir: %w", err)
	}
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return err
	}

	return wire.WriteFrame(s.conn, wire.CmdOK, nil)
}

// deleteLocal removes a DELETE_LOCAL path from disk. Per spec.md §4.4 step
// 4, a pull's deletes are applied by the client straight out of
// PullPlanResponse.FilesToDelete, with no DELETE_FILE round-trip to the
// server (the server never sends one in pull mode).
func deleteLocal(localRoot, wirePath string) error {
	destPath, err := pathutil.ResolveUnder(localRoot, wirePath)
	if err != nil {
		return fmt.Errorf("reject planned delete: %w", err)
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
