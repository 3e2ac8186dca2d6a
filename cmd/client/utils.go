package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jelasin/gosync/internal/client"
	"github.com/jelasin/gosync/internal/config"
	"github.com/jelasin/gosync/internal/cryptoutil"
	"github.com/jelasin/gosync/internal/scan"
	"github.com/jelasin/gosync/internal/state"
	"github.com/jelasin/gosync/internal/transfer"
	"github.com/jelasin/gosync/internal/workspace"
)

// setupSession loads the client config, locks the managed workspace, opens
// its state store, and builds a client.Client ready to Push or Pull -
// everything the push/pull/status/show commands share.
func setupSession(cmd *cobra.Command) (*client.Client, *workspace.Workspace, *state.Store, *config.Config, error) {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	ws, err := workspace.New(cfg.Client.LocalDir)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := ws.Setup(); err != nil {
		return nil, nil, nil, nil, err
	}

	store, err := state.Open(ws.StatePath)
	if err != nil && !errors.Is(err, state.ErrMalformed) {
		ws.Unlock()
		return nil, nil, nil, nil, fmt.Errorf("open state: %w", err)
	}

	var key []byte
	if cfg.Client.KeyFile != "" {
		key, err = cryptoutil.LoadKey(cfg.Client.KeyFile)
		if err != nil {
			ws.Unlock()
			return nil, nil, nil, nil, fmt.Errorf("load key file: %w", err)
		}
	}

	transfer.SetChunkSize(cfg.Sync.ChunkSize)

	c := client.New(client.Config{
		Addr:        cfg.Client.ServerAddress,
		LocalRoot:   ws.Root,
		Key:         key,
		DialTimeout: time.Duration(cfg.Client.Timeout) * time.Second,
		IdleTimeout: time.Duration(cfg.Client.Timeout) * time.Second,
		ScanOptions: scan.Options{
			Exclude:       scan.NewExcludeMatcher(cfg.Sync.ExcludePatterns),
			IncludeHidden: cfg.Sync.IncludeHidden,
		},
	})

	return c, ws, store, cfg, nil
}
