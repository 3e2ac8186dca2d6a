package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jelasin/gosync/internal/client"
)

// runWithRetry retries a single sync attempt up to the configured
// client.retry_count with a short linear backoff, per
// original_source/sync_tools/core/client.py's retry loop. A CONFLICT is not
// retried - it's a semantic rejection, not a transient failure.
func runWithRetry(cmd *cobra.Command, attempt func(cmd *cobra.Command) error) error {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i <= cfg.Client.RetryCount; i++ {
		lastErr = attempt(cmd)
		if lastErr == nil {
			return nil
		}

		var conflict *client.ConflictError
		if errors.As(lastErr, &conflict) {
			return lastErr
		}
		if cmd.Context().Err() != nil {
			return lastErr
		}
		if i < cfg.Client.RetryCount {
			slog.Warn("sync attempt failed, retrying", "attempt", i+1, "error", lastErr)
			select {
			case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
			case <-cmd.Context().Done():
				return lastErr
			}
		}
	}
	return lastErr
}
