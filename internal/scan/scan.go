// Package scan implements the Scanner & Hasher (spec.md §4.2): it walks the
// managed directory, hashes regular files, and produces a transport snapshot
// by diffing against the previously persisted state.
package scan

import (
	"crypto/md5"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/jelasin/gosync/internal/pathutil"
	"github.com/jelasin/gosync/internal/state"
)

const hashChunkSize = 4 * 1024

// StateFileName is excluded from every scan, regardless of its configured
// location, so the state file never syncs itself.
const StateFileName = "sync_state.json"

// Options controls which on-disk paths Snapshot considers, grounded on the
// teacher's SyncIgnoreList (internal/client/sync/sync_ignore.go) and the
// "sync" section of config_manager.py (exclude_patterns/include_hidden).
type Options struct {
	// Exclude matches relative paths using gitignore syntax; a matching file
	// or directory is left out of the snapshot entirely. Nil means no
	// exclusions beyond the state file itself.
	Exclude *gitignore.GitIgnore
	// IncludeHidden, when false (the default), also skips dotfiles and
	// dot-directories regardless of Exclude.
	IncludeHidden bool
}

// NewExcludeMatcher compiles exclude_patterns (gitignore syntax, matching
// the teacher's SyncIgnoreList.Load) into the matcher Options.Exclude needs.
// An empty pattern list yields a nil matcher so Snapshot can skip the check.
func NewExcludeMatcher(patterns []string) *gitignore.GitIgnore {
	if len(patterns) == 0 {
		return nil
	}
	return gitignore.CompileIgnoreLines(patterns...)
}

// Snapshot walks root and returns the current transport snapshot, diffed
// against prev per spec.md §4.2's version-bump rules:
//   - present on disk, same digest as prev: version retained
//   - present on disk, new or changed digest: version = prev+1 (or 1 if new)
//   - absent from disk but active in prev: fresh tombstone at prev.version+1
//   - already a tombstone in prev: carried over unchanged
//
// Paths matching opts.Exclude, or hidden paths when !opts.IncludeHidden, are
// left out of the snapshot as if they never existed on disk; a path that was
// previously active and is now excluded is NOT tombstoned (it has simply
// left the set this party tracks, same as before exclude filtering existed).
func Snapshot(root string, prev map[string]state.FileEntry, opts Options) (map[string]state.FileEntry, error) {
	seen := make(map[string]bool, len(prev))
	out := make(map[string]state.FileEntry, len(prev))

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("scan: walk %s: %w", p, walkErr)
		}

		if p == root {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if name == StateFileName {
			return nil
		}
		if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("scan: rel path %s: %w", p, err)
		}
		relPath := pathutil.Normalize(rel)

		if opts.Exclude != nil && opts.Exclude.MatchesPath(relPath) {
			// Carry a previously-tracked entry forward unchanged so the
			// absent-tombstone pass below doesn't mistake "now excluded"
			// for "deleted"; a never-tracked excluded path stays untracked.
			if prevEntry, existed := prev[relPath]; existed {
				seen[relPath] = true
				out[relPath] = prevEntry
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("scan: stat %s: %w", p, err)
		}

		digest, err := hashFile(p)
		if err != nil {
			return fmt.Errorf("scan: hash %s: %w", p, err)
		}

		prevEntry, existed := prev[relPath]
		version := int64(1)
		if existed {
			if prevEntry.Status == state.StatusActive && prevEntry.Digest == digest {
				version = prevEntry.Version
			} else {
				version = prevEntry.Version + 1
			}
		}

		seen[relPath] = true
		out[relPath] = state.FileEntry{
			Digest:   digest,
			Size:     info.Size(),
			Modified: info.ModTime(),
			Version:  version,
			Status:   state.StatusActive,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for path, entry := range prev {
		if seen[path] {
			continue
		}
		if entry.Status == state.StatusDeleted {
			out[path] = entry
			continue
		}
		now := time.Now()
		out[path] = state.FileEntry{
			Digest:    "",
			Size:      0,
			Modified:  now,
			Version:   entry.Version + 1,
			Status:    state.StatusDeleted,
			DeletedAt: &now,
		}
	}

	return out, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// EmptyDirs returns the forward-slash relative paths of directories under
// root that, after exclude/hidden filtering, contain no files anywhere
// beneath them. SyncState has no representation for directories (only files
// have entries), so a sender walks the tree fresh each session to find them
// and asks its peer to recreate them via CREATE_DIR. Only the deepest empty
// directories are reported (those with no included files or subdirectories;
// root itself is never reported); MkdirAll on the receiving end recreates
// their parents along with them.
func EmptyDirs(root string, opts Options) ([]string, error) {
	var result []string

	var walk func(dir, rel string) (hasEntry bool, err error)
	walk = func(dir, rel string) (bool, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return false, fmt.Errorf("scan: readdir %s: %w", dir, err)
		}

		hasEntry := false
		for _, e := range entries {
			name := e.Name()
			childRel := name
			if rel != "" {
				childRel = rel + "/" + name
			}

			if e.IsDir() {
				if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
					continue
				}
				if opts.Exclude != nil && opts.Exclude.MatchesPath(childRel) {
					continue
				}
				childHasEntry, err := walk(filepath.Join(dir, name), childRel)
				if err != nil {
					return false, err
				}
				if !childHasEntry {
					result = append(result, childRel)
				}
				hasEntry = true
				continue
			}

			if name == StateFileName {
				continue
			}
			if !opts.IncludeHidden && strings.HasPrefix(name, ".") {
				continue
			}
			if opts.Exclude != nil && opts.Exclude.MatchesPath(childRel) {
				continue
			}
			hasEntry = true
		}

		return hasEntry, nil
	}

	if _, err := walk(root, ""); err != nil {
		return nil, err
	}

	sort.Strings(result)
	return result, nil
}

// Classification buckets a path's change relative to the stored state.
type Classification string

const (
	Added     Classification = "added"
	Modified  Classification = "modified"
	Deleted   Classification = "deleted"
	Unchanged Classification = "unchanged"
)

// Classify compares a fresh snapshot against the previously stored state and
// buckets each path for human-facing diff/status output.
func Classify(snapshot, prev map[string]state.FileEntry) map[string]Classification {
	out := make(map[string]Classification, len(snapshot))

	for path, cur := range snapshot {
		old, existed := prev[path]
		switch {
		case cur.Status == state.StatusDeleted:
			if existed && old.Status == state.StatusActive {
				out[path] = Deleted
			}
		case !existed:
			out[path] = Added
		case old.Status == state.StatusDeleted:
			out[path] = Added
		case old.Digest != cur.Digest:
			out[path] = Modified
		default:
			out[path] = Unchanged
		}
	}
	return out
}
