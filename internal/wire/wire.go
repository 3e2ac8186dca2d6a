// Package wire implements the framed request/response protocol (spec.md
// §4.4): a length-prefixed command frame over any reliable byte stream,
// carrying a JSON metadata payload and, for FILE_DATA, a raw trailing byte
// stream of declared length.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jelasin/gosync/internal/jsonutil"
)

// Command is one of the uppercase ASCII protocol tokens.
type Command string

const (
	CmdHello        Command = "HELLO"
	CmdGetState     Command = "GET_STATE"
	CmdSyncRequest  Command = "SYNC_REQUEST"
	CmdFileData     Command = "FILE_DATA"
	CmdDeleteFile   Command = "DELETE_FILE"
	CmdCreateDir    Command = "CREATE_DIR"
	CmdSyncComplete Command = "SYNC_COMPLETE"
	CmdConflict     Command = "CONFLICT"
	CmdOK           Command = "OK"
	CmdError        Command = "ERROR"
)

// MaxCmdLen and MaxDataLen bound a frame header so a corrupt or malicious
// peer can't make a reader allocate unbounded memory before any content is
// validated. data_len only bounds the JSON metadata frame; FILE_DATA payload
// bytes are read separately per transfer_size, not through this path.
const (
	MaxCmdLen  = 64
	MaxDataLen = 16 << 20 // 16 MiB of JSON metadata is already generous
)

var (
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")
	ErrShortRead     = errors.New("wire: short read, connection likely closed")
)

// Frame is one decoded protocol frame: a command token plus its JSON data.
type Frame struct {
	Cmd  Command
	Data []byte
}

// WriteFrame writes [4B cmd_len][4B data_len][cmd][data] to w.
func WriteFrame(w io.Writer, cmd Command, data []byte) error {
	cmdBytes := []byte(cmd)
	if len(cmdBytes) > MaxCmdLen {
		return fmt.Errorf("wire: command %q exceeds max length", cmd)
	}
	if len(data) > MaxDataLen {
		return ErrFrameTooLarge
	}

	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(cmdBytes)))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(data)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if _, err := w.Write(cmdBytes); err != nil {
		return fmt.Errorf("wire: write command: %w", err)
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("wire: write data: %w", err)
		}
	}
	return nil
}

// WriteJSON marshals v and writes it as the data payload of a frame.
func WriteJSON(w io.Writer, cmd Command, v any) error {
	data, err := jsonutil.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal payload for %s: %w", cmd, err)
	}
	return WriteFrame(w, cmd, data)
}

// ReadFrame reads and validates one frame header, then its command and data
// bytes, from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortRead
		}
		return nil, fmt.Errorf("wire: read header: %w", err)
	}

	cmdLen := binary.BigEndian.Uint32(header[0:4])
	dataLen := binary.BigEndian.Uint32(header[4:8])

	if cmdLen > MaxCmdLen {
		return nil, fmt.Errorf("%w: cmd_len=%d", ErrFrameTooLarge, cmdLen)
	}
	if dataLen > MaxDataLen {
		return nil, fmt.Errorf("%w: data_len=%d", ErrFrameTooLarge, dataLen)
	}

	cmdBytes := make([]byte, cmdLen)
	if _, err := io.ReadFull(r, cmdBytes); err != nil {
		return nil, fmt.Errorf("wire: read command: %w", err)
	}

	var data []byte
	if dataLen > 0 {
		data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("wire: read data: %w", err)
		}
	}

	return &Frame{Cmd: Command(cmdBytes), Data: data}, nil
}

// DecodeJSON unmarshals a frame's data payload into v.
func (f *Frame) DecodeJSON(v any) error {
	if len(f.Data) == 0 {
		return errors.New("wire: frame has no data payload")
	}
	return jsonutil.Unmarshal(f.Data, v)
}
