package wire

import (
	"time"

	"github.com/jelasin/gosync/internal/state"
)

// HelloRequest is the client's opening handshake message.
type HelloRequest struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	LocalDir  string `json:"local_dir"`
	ClientID  string `json:"client_id"`
	Encrypted bool   `json:"encrypted"`
}

// HelloResponse is the server's reply to HELLO.
type HelloResponse struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	SyncDir       string `json:"sync_dir"`
	ServerVersion int64  `json:"server_version"`
}

// GetStateResponse answers GET_STATE.
type GetStateResponse struct {
	Files   map[string]state.FileEntry `json:"files"`
	Version int64                      `json:"version"`
}

// SyncRequest opens a sync session in push or pull direction.
type SyncRequest struct {
	Mode        string                     `json:"mode"` // "push" or "pull"
	ClientState map[string]state.FileEntry `json:"client_state"`
	BaseVersion int64                      `json:"base_version"`
	ClientID    string                     `json:"client_id"`
}

// ConflictResponse is sent instead of a plan when push conflicts are found.
type ConflictResponse struct {
	ServerVersion int64    `json:"server_version"`
	Conflicts     []string `json:"conflicts"`
	Message       string   `json:"message"`
}

// PushPlanResponse is the OK payload answering a push SyncRequest.
type PushPlanResponse struct {
	ServerVersion int64    `json:"server_version"`
	FilesToUpload []string `json:"files_to_upload"`
	FilesToDelete []string `json:"files_to_delete"`
}

// PullPlanResponse is the OK payload answering a pull SyncRequest.
// DirsToCreate lists server-side directories with no files anywhere beneath
// them, found by internal/scan.EmptyDirs; the server sends one CREATE_DIR
// frame per entry, in this order, before FilesToDownload.
type PullPlanResponse struct {
	ServerVersion   int64    `json:"server_version"`
	FilesToDownload []string `json:"files_to_download"`
	FilesToDelete   []string `json:"files_to_delete"`
	DirsToCreate    []string `json:"dirs_to_create"`
}

// FileDataMeta describes a FILE_DATA frame's payload, which precedes the raw
// byte stream of length TransferSize.
type FileDataMeta struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash"`
	Version      int64     `json:"version"`
	Encrypted    bool      `json:"encrypted"`
	Compressed   bool      `json:"compressed"`
	TransferSize int64     `json:"transfer_size"`
	Streaming    bool      `json:"streaming"`
	Modified     time.Time `json:"modified"`
}

// DeleteFileRequest asks the receiver to remove a path.
type DeleteFileRequest struct {
	Path string `json:"path"`
}

// CreateDirRequest asks the receiver to create an empty directory.
type CreateDirRequest struct {
	Path string `json:"path"`
}

// SyncCompleteRequest reports what a session actually did, so the server
// knows whether to bump sync_version.
type SyncCompleteRequest struct {
	Uploaded int `json:"uploaded"`
	Deleted  int `json:"deleted"`
}

// SyncCompleteResponse carries the (possibly bumped) server version.
type SyncCompleteResponse struct {
	NewVersion int64 `json:"new_version"`
}

// ErrorResponse carries a short machine-parseable error kind and a message.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
