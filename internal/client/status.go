package client

import (
	"context"
	"fmt"

	"github.com/jelasin/gosync/internal/state"
	"github.com/jelasin/gosync/internal/wire"
)

// RemoteState fetches the server's current file table and sync_version,
// used by the CLI's "show" command.
func (c *Client) RemoteState(ctx context.Context, clientID string) (map[string]state.FileEntry, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.dial(ctx, clientID)
	if err != nil {
		return nil, 0, err
	}
	defer s.close()

	if err := s.setDeadline(); err != nil {
		return nil, 0, err
	}
	if err := wire.WriteFrame(s.conn, wire.CmdGetState, nil); err != nil {
		return nil, 0, fmt.Errorf("client: send get_state: %w", err)
	}

	frame, err := wire.ReadFrame(s.conn)
	if err != nil {
		return nil, 0, fmt.Errorf("client: read get_state reply: %w", err)
	}
	if frame.Cmd != wire.CmdOK {
		return nil, 0, fmt.Errorf("client: unexpected reply to get_state: %s", frame.Cmd)
	}

	var resp wire.GetStateResponse
	if err := frame.DecodeJSON(&resp); err != nil {
		return nil, 0, fmt.Errorf("client: decode get_state reply: %w", err)
	}
	return resp.Files, resp.Version, nil
}
