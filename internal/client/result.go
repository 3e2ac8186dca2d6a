package client

// Result summarizes one Push or Pull session for CLI reporting.
type Result struct {
	Uploaded   []string
	Downloaded []string
	Deleted    []string
	NewVersion int64
}
