package client

import "fmt"

// ConflictError is returned by Push when the server detects version
// divergence with an overlapping mutation set (spec.md §7 ConflictError).
// The caller's recourse, per spec.md §7, is to pull then push again.
type ConflictError struct {
	ServerVersion int64
	Paths         []string
	Message       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict at server version %d: %v (%s)", e.ServerVersion, e.Paths, e.Message)
}
