package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jelasin/gosync/internal/session"
	"github.com/jelasin/gosync/internal/state"
)

// startTestServer boots a session.Coordinator on a loopback port for the
// show/pull command tests to dial, mirroring internal/client's own test helper.
func startTestServer(t *testing.T) string {
	t.Helper()

	serverRoot := t.TempDir()
	serverStore, err := state.Open(filepath.Join(serverRoot, "sync_state.json"))
	require.NoError(t, err)

	coord := session.New(session.Config{RootDir: serverRoot, IdleTimeout: 2 * time.Second}, serverStore)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Serve(ctx, ln)
	t.Cleanup(func() { ln.Close() })

	return ln.Addr().String()
}

func TestShowCmdPrintsPushedFile(t *testing.T) {
	addr := startTestServer(t)

	pusherDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pusherDir, "a.txt"), []byte("hello"), 0o644))

	pushCmd := newPushCmd()
	pushCmd.Flags().AddFlagSet(newTestClientCmd(pusherDir, addr).Flags())
	pushCmd.SetContext(context.Background())
	var pushOut bytes.Buffer
	pushCmd.SetOut(&pushOut)
	require.NoError(t, pushCmd.RunE(pushCmd, nil))

	showerDir := t.TempDir()
	showCmd := newShowCmd()
	showCmd.Flags().AddFlagSet(newTestClientCmd(showerDir, addr).Flags())
	showCmd.SetContext(context.Background())
	var showOut bytes.Buffer
	showCmd.SetOut(&showOut)

	require.NoError(t, showCmd.RunE(showCmd, nil))
	require.Contains(t, showOut.String(), "sync_version: 1")
	require.Contains(t, showOut.String(), "a.txt")
	require.Contains(t, showOut.String(), "active")
}
