package client

import (
	"context"
	"fmt"

	"github.com/jelasin/gosync/internal/pathutil"
	"github.com/jelasin/gosync/internal/plan"
	"github.com/jelasin/gosync/internal/scan"
	"github.com/jelasin/gosync/internal/state"
	"github.com/jelasin/gosync/internal/transfer"
	"github.com/jelasin/gosync/internal/wire"
)

// Push rescans the local tree, asks the server to plan a push, uploads or
// deletes whatever the plan calls for, then commits SYNC_COMPLETE. On
// success the store's state is replaced with the just-scanned local
// snapshot at the server's new version.
func (c *Client) Push(ctx context.Context, store *state.Store) (*Result, error) {
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
		Mode:        string(plan.Push),
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
	if frame.Cmd == wire.CmdConflict {
		var conflict wire.ConflictResponse
		if err := frame.DecodeJSON(&conflict); err != nil {
			return nil, fmt.Errorf("client: decode conflict: %w", err)
		}
		return nil, &ConflictError{ServerVersion: conflict.ServerVersion, Paths: conflict.Conflicts, Message: conflict.Message}
	}
	if frame.Cmd != wire.CmdOK {
		return nil, fmt.Errorf("client: unexpected reply to sync_request: %s", frame.Cmd)
	}

	var planResp wire.PushPlanResponse
	if err := frame.DecodeJSON(&planResp); err != nil {
		return nil, fmt.Errorf("client: decode push plan: %w", err)
	}

	dirs, err := scan.EmptyDirs(c.cfg.LocalRoot, c.cfg.ScanOptions)
	if err != nil {
		return nil, fmt.Errorf("client: find empty dirs: %w", err)
	}
	for _, wirePath := range dirs {
		if err := s.createRemoteDir(wirePath); err != nil {
			return nil, fmt.Errorf("client: create dir %s: %w", wirePath, err)
		}
	}

	for _, wirePath := range planResp.FilesToUpload {
		entry, ok := local[wirePath]
		if !ok {
			continue
		}
		srcPath, err := pathutil.ResolveUnder(c.cfg.LocalRoot, wirePath)
		if err != nil {
			return nil, fmt.Errorf("client: reject planned upload %s: %w", wirePath, err)
		}
		if err := s.sendFile(srcPath, wirePath, entry.Version, c.cfg.Key); err != nil {
			return nil, fmt.Errorf("client: upload %s: %w", wirePath, err)
		}
	}

	for _, wirePath := range planResp.FilesToDelete {
		if err := s.deleteRemote(wirePath); err != nil {
			return nil, fmt.Errorf("client: delete %s: %w", wirePath, err)
		}
	}

	newVersion, err := s.syncComplete(len(planResp.FilesToUpload), len(planResp.FilesToDelete))
	if err != nil {
		return nil, err
	}

	store.CommitAfterSync(local, newVersion)
	if err := store.Save(); err != nil {
		return nil, fmt.Errorf("client: save state: %w", err)
	}

	return &Result{
		Uploaded:   planResp.FilesToUpload,
		Deleted:    planResp.FilesToDelete,
		NewVersion: newVersion,
	}, nil
}

// sendFile prepares and transmits one file: metadata frame, await OK,
// stream the body, await a final OK verifying receipt.
func (s *session) sendFile(srcPath, wirePath string, version int64, key []byte) error {
	prepared, err := transfer.Prepare(srcPath, wirePath, version, transfer.PrepareOptions{
		Key:          key,
		CompressPref: true,
	})
	if err != nil {
		return err
	}

	if err := s.setDeadline(); err != nil {
		return err
	}
	if err := wire.WriteJSON(s.conn, wire.CmdFileData, prepared.Meta); err != nil {
		return err
	}
	if err := s.awaitOK(); err != nil {
		return fmt.Errorf("peer rejected metadata: %w", err)
	}
	if err := transfer.SendBody(s.conn, prepared, srcPath, nil); err != nil {
		return err
	}
	return s.awaitOK()
}

func (s *session) createRemoteDir(wirePath string) error {
	if err := s.setDeadline(); err != nil {
		return err
	}
	if err := wire.WriteJSON(s.conn, wire.CmdCreateDir, wire.CreateDirRequest{Path: wirePath}); err != nil {
		return err
	}
	return s.awaitOK()
}

func (s *session) deleteRemote(wirePath string) error {
	if err := s.setDeadline(); err != nil {
		return err
	}
	if err := wire.WriteJSON(s.conn, wire.CmdDeleteFile, wire.DeleteFileRequest{Path: wirePath}); err != nil {
		return err
	}
	return s.awaitOK()
}

func (s *session) syncComplete(uploaded, deleted int) (int64, error) {
	if err := s.setDeadline(); err != nil {
		return 0, err
	}
	if err := wire.WriteJSON(s.conn, wire.CmdSyncComplete, wire.SyncCompleteRequest{
		Uploaded: uploaded,
		Deleted:  deleted,
	}); err != nil {
		return 0, fmt.Errorf("client: send sync_complete: %w", err)
	}

	frame, err := wire.ReadFrame(s.conn)
	if err != nil {
		return 0, fmt.Errorf("client: read sync_complete reply: %w", err)
	}
	if frame.Cmd == wire.CmdConflict {
		var conflict wire.ConflictResponse
		if err := frame.DecodeJSON(&conflict); err != nil {
			return 0, fmt.Errorf("client: decode conflict: %w", err)
		}
		return 0, &ConflictError{ServerVersion: conflict.ServerVersion, Paths: conflict.Conflicts, Message: conflict.Message}
	}
	if frame.Cmd != wire.CmdOK {
		return 0, fmt.Errorf("client: unexpected reply to sync_complete: %s", frame.Cmd)
	}

	var resp wire.SyncCompleteResponse
	if err := frame.DecodeJSON(&resp); err != nil {
		return 0, fmt.Errorf("client: decode sync_complete reply: %w", err)
	}
	return resp.NewVersion, nil
}
