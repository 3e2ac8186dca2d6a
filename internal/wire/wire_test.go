package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteJSON(&buf, CmdHello, HelloRequest{
		Name:     "gosync",
		Version:  "1.0",
		LocalDir: "/tmp/data",
		ClientID: "abcd1234",
	}))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, CmdHello, frame.Cmd)

	var req HelloRequest
	require.NoError(t, frame.DecodeJSON(&req))
	require.Equal(t, "gosync", req.Name)
	require.Equal(t, "abcd1234", req.ClientID)
}

func TestFrameEmptyData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, CmdOK, nil))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, CmdOK, frame.Cmd)
	require.Empty(t, frame.Data)
}

func TestReadFrameShortRead(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 1}) // truncated header

	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 8)
	header[3] = byte(200) // cmd_len = 200, exceeds MaxCmdLen
	buf.Write(header)

	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, CmdHello, []byte("a")))
	require.NoError(t, WriteFrame(&buf, CmdOK, []byte("b")))

	f1, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, CmdHello, f1.Cmd)
	require.Equal(t, []byte("a"), f1.Data)

	f2, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, CmdOK, f2.Cmd)
	require.Equal(t, []byte("b"), f2.Data)
}
