// Package session implements the server-side Session Coordinator (spec.md
// §4.6): a net.Listener accept loop that spawns one independent handler per
// connection, each dispatching frames by command against a shared State
// Store and sync_version counter.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jelasin/gosync/internal/scan"
	"github.com/jelasin/gosync/internal/state"
)

// Config controls a Coordinator's behavior.
type Config struct {
	// RootDir is the server's managed tree; all wire paths are resolved
	// relative to it.
	RootDir string
	// Key enables encrypted sessions when non-nil. A HELLO whose Encrypted
	// flag doesn't match whether Key is set is rejected at handshake.
	Key []byte
	// IdleTimeout bounds how long the handler waits for the next frame.
	IdleTimeout time.Duration
	// ScanOptions applies the "sync" config section's exclude_patterns and
	// include_hidden to every rescan of the server's own tree.
	ScanOptions scan.Options
}

const defaultIdleTimeout = 30 * time.Second

// Coordinator owns the shared State Store and accepts connections.
type Coordinator struct {
	cfg   Config
	store *state.Store

	pathLocks sync.Map // map[string]*sync.Mutex, serializes same-path writes across sessions
}

// New constructs a Coordinator backed by an already-opened State Store.
func New(cfg Config, store *state.Store) *Coordinator {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Coordinator{cfg: cfg, store: store}
}

// Serve accepts connections on ln until ctx is canceled or the listener
// errors. Each connection is handled in its own goroutine under an
// errgroup; a single connection's failure never brings down the listener.
func (c *Coordinator) Serve(ctx context.Context, ln net.Listener) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-egCtx.Done()
		return ln.Close()
	})

	eg.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if egCtx.Err() != nil {
					return nil
				}
				return fmt.Errorf("session: accept: %w", err)
			}

			sessionID := uuid.New().String()
			eg.Go(func() error {
				h := &handler{
					coord:     c,
					conn:      conn,
					sessionID: sessionID,
				}
				if err := h.run(egCtx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("session ended with error", "session", sessionID, "remote", conn.RemoteAddr(), "error", err)
				}
				return nil
			})
		}
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// lockPath returns the per-path mutex used to serialize concurrent writes
// to the same path across sessions, creating it on first use.
func (c *Coordinator) lockPath(path string) *sync.Mutex {
	v, _ := c.pathLocks.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}
