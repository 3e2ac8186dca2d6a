// Package workspace resolves a managed sync root and guards it with an
// advisory file lock, so a daemon and a CLI invocation (or two CLI
// invocations) against the same directory can't race its state file.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/jelasin/gosync/internal/pathutil"
)

const (
	metadataDir = ".gosync"
	lockFile    = "gosync.lock"
	statePath   = "sync_state.json"
)

var ErrWorkspaceLocked = errors.New("workspace: locked by another process")

// Workspace is a resolved managed directory: its root, its metadata
// subdirectory (where the state file and lock live), and the lock itself.
type Workspace struct {
	Root        string
	MetadataDir string
	StatePath   string

	flock *flock.Flock
}

// New resolves rootDir (expanding "~", making it absolute) and derives the
// metadata directory and state file path beneath it.
func New(rootDir string) (*Workspace, error) {
	root, err := pathutil.Resolve(rootDir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve %s: %w", rootDir, err)
	}

	metaDir := filepath.Join(root, metadataDir)
	return &Workspace{
		Root:        root,
		MetadataDir: metaDir,
		StatePath:   filepath.Join(metaDir, statePath),
		flock:       flock.New(filepath.Join(metaDir, lockFile)),
	}, nil
}

// Lock acquires the advisory lock, creating the metadata directory first.
func (w *Workspace) Lock() error {
	if err := pathutil.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("workspace: create %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("workspace: lock: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

// Unlock releases the lock and removes the lock file, but only if this
// process is the one holding it.
func (w *Workspace) Unlock() error {
	if !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("workspace: unlock: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// Setup locks the workspace and ensures the managed root and its metadata
// directory exist.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	if err := pathutil.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("workspace: create %s: %w", w.Root, err)
	}
	if err := pathutil.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("workspace: create %s: %w", w.MetadataDir, err)
	}
	return nil
}
