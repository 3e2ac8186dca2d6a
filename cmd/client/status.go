package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jelasin/gosync/internal/scan"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local changes since the last push or pull, without contacting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ws, store, cfg, err := setupSession(cmd)
			if err != nil {
				return err
			}
			defer ws.Unlock()

			opts := scan.Options{
				Exclude:       scan.NewExcludeMatcher(cfg.Sync.ExcludePatterns),
				IncludeHidden: cfg.Sync.IncludeHidden,
			}

			prev := store.Snapshot()
			current, err := scan.Snapshot(ws.Root, prev.Files, opts)
			if err != nil {
				return err
			}

			classes := scan.Classify(current, prev.Files)
			paths := make([]string, 0, len(classes))
			for p, c := range classes {
				if c == scan.Unchanged {
					continue
				}
				paths = append(paths, p)
			}
			sort.Strings(paths)

			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to sync")
				return nil
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", classes[p], p)
			}
			return nil
		},
	}
}
