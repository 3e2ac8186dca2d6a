package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jelasin/gosync/internal/client"
)

func init() {
	rootCmd.AddCommand(newPushCmd())
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload local changes to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRetry(cmd, pushOnce)
		},
	}
}

func pushOnce(cmd *cobra.Command) error {
	c, ws, store, _, err := setupSession(cmd)
	if err != nil {
		return err
	}
	defer ws.Unlock()

	result, err := c.Push(cmd.Context(), store)
	if err != nil {
		var conflict *client.ConflictError
		if errors.As(err, &conflict) {
			fmt.Fprintf(cmd.OutOrStdout(), "conflict at server version %d: %v\n", conflict.ServerVersion, conflict.Paths)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pushed: %d uploaded, %d deleted, server now at version %d\n",
		len(result.Uploaded), len(result.Deleted), result.NewVersion)
	return nil
}
