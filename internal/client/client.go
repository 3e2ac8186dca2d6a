// Package client implements the thin client driver (spec.md §2): it composes
// the Scanner, Planner, Wire Protocol, and Transfer Engine leaves against a
// remote Session Coordinator, exactly as the core does locally.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jelasin/gosync/internal/scan"
	"github.com/jelasin/gosync/internal/wire"
)

// Config describes one remote gosync server endpoint and how to reach it.
type Config struct {
	// Addr is the server's "host:port".
	Addr string
	// LocalRoot is the managed directory on this machine.
	LocalRoot string
	// Key enables encrypted sessions when non-nil; it must match the
	// server's configuration or the handshake is rejected.
	Key []byte
	// DialTimeout bounds connection setup; IdleTimeout bounds each frame
	// exchange once connected.
	DialTimeout time.Duration
	IdleTimeout time.Duration
	// ScanOptions applies the "sync" config section's exclude_patterns and
	// include_hidden to every local rescan this client performs.
	ScanOptions scan.Options
}

const (
	defaultDialTimeout = 10 * time.Second
	defaultIdleTimeout = 30 * time.Second
)

// Client drives one configured remote endpoint. A single Client serializes
// its own push/pull calls (mirroring the teacher's SyncEngine.muSync) so a
// caller can safely wire it to both a periodic timer and a file-watcher
// trigger without risking two sessions racing on the same local tree.
type Client struct {
	cfg Config
	mu  sync.Mutex
}

// New constructs a Client, filling in default timeouts.
func New(cfg Config) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Client{cfg: cfg}
}

// session is one connect-handshake-...-disconnect cycle's mutable state.
type session struct {
	conn     net.Conn
	cfg      Config
	clientID string
}

func (c *Client) dial(ctx context.Context, clientID string) (*session, error) {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", c.cfg.Addr, err)
	}

	s := &session{conn: conn, cfg: c.cfg, clientID: clientID}
	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) handshake() error {
	if err := s.setDeadline(); err != nil {
		return err
	}
	if err := wire.WriteJSON(s.conn, wire.CmdHello, wire.HelloRequest{
		Name:      "gosync",
		Version:   "1",
		LocalDir:  s.cfg.LocalRoot,
		ClientID:  s.clientID,
		Encrypted: len(s.cfg.Key) > 0,
	}); err != nil {
		return fmt.Errorf("client: send hello: %w", err)
	}

	frame, err := wire.ReadFrame(s.conn)
	if err != nil {
		return fmt.Errorf("client: read hello response: %w", err)
	}
	if frame.Cmd == wire.CmdError {
		var errResp wire.ErrorResponse
		_ = frame.DecodeJSON(&errResp)
		return fmt.Errorf("client: handshake rejected: %s", errResp.Message)
	}
	if frame.Cmd != wire.CmdHello {
		return fmt.Errorf("client: expected HELLO reply, got %s", frame.Cmd)
	}

	var resp wire.HelloResponse
	if err := frame.DecodeJSON(&resp); err != nil {
		return fmt.Errorf("client: decode hello response: %w", err)
	}
	return nil
}

func (s *session) setDeadline() error {
	return s.conn.SetDeadline(time.Now().Add(s.cfg.IdleTimeout))
}

func (s *session) close() error {
	return s.conn.Close()
}

// awaitOK reads the next frame and requires it to be OK, surfacing ERROR
// frames as Go errors.
func (s *session) awaitOK() error {
	if err := s.setDeadline(); err != nil {
		return err
	}
	frame, err := wire.ReadFrame(s.conn)
	if err != nil {
		return err
	}
	if frame.Cmd == wire.CmdError {
		var errResp wire.ErrorResponse
		_ = frame.DecodeJSON(&errResp)
		return fmt.Errorf("%s: %s", errResp.Kind, errResp.Message)
	}
	if frame.Cmd != wire.CmdOK {
		return fmt.Errorf("expected OK, got %s", frame.Cmd)
	}
	return nil
}
