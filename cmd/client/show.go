package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jelasin/gosync/internal/state"
)

func init() {
	rootCmd.AddCommand(newShowCmd())
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the server's current file table and sync version",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ws, store, _, err := setupSession(cmd)
			if err != nil {
				return err
			}
			defer ws.Unlock()

			clientID := store.Snapshot().ClientID
			files, serverVersion, err := c.RemoteState(cmd.Context(), clientID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "server sync_version: %d\n", serverVersion)
			printFiles(cmd, files)
			return nil
		},
	}
}

func printFiles(cmd *cobra.Command, files map[string]state.FileEntry) {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		entry := files[p]
		if entry.Status == state.StatusDeleted {
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-6d %s\n", "deleted", entry.Version, p)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-6d %8d  %s\n", "active", entry.Version, entry.Size, p)
	}
}
