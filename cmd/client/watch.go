package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jelasin/gosync/internal/client"
	"github.com/jelasin/gosync/internal/state"
	"github.com/jelasin/gosync/pkg/fswatch"
)

const watchDebounce = 500 * time.Millisecond

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the local directory and push on every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd)
		},
	}
}

func runWatch(cmd *cobra.Command) error {
	c, ws, store, _, err := setupSession(cmd)
	if err != nil {
		return err
	}
	defer ws.Unlock()

	w, err := fswatch.New()
	if err != nil {
		return err
	}
	if err := w.Add(ws.Root); err != nil {
		return err
	}

	ctx := cmd.Context()
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, fswatch.ErrWatcherClosed) {
			slog.Warn("watcher stopped", "error", err)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", ws.Root)

	var timer *time.Timer
	debounced := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			w.Stop(context.Background())
			return ctx.Err()

		case <-w.Events:
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case debounced <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(watchDebounce)
			}

		case err := <-w.Errors:
			slog.Warn("watch error", "error", err)

		case <-debounced:
			if err := pushTriggered(ctx, c, store); err != nil {
				var conflict *client.ConflictError
				if errors.As(err, &conflict) {
					fmt.Fprintf(cmd.OutOrStdout(), "conflict at server version %d: %v\n", conflict.ServerVersion, conflict.Paths)
				} else {
					slog.Warn("triggered push failed", "error", err)
				}
			}
		}
	}
}

func pushTriggered(ctx context.Context, c *client.Client, store *state.Store) error {
	_, err := c.Push(ctx, store)
	return err
}
