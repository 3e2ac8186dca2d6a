package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jelasin/gosync/internal/config"
	"github.com/jelasin/gosync/internal/cryptoutil"
	"github.com/jelasin/gosync/internal/logging"
	"github.com/jelasin/gosync/internal/scan"
	"github.com/jelasin/gosync/internal/session"
	"github.com/jelasin/gosync/internal/state"
	"github.com/jelasin/gosync/internal/transfer"
	"github.com/jelasin/gosync/internal/version"
)

var dotenvLoaded bool

var rootCmd = &cobra.Command{
	Use:     "gosync-server",
	Short:   "gosync server daemon",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cmd)
		if err != nil {
			cmd.SilenceUsage = false
			return err
		}

		slog.Info("server config", "dotenvLoaded", dotenvLoaded, "config", cfg.LogValue())

		transfer.SetChunkSize(cfg.Sync.ChunkSize)

		coordCfg, err := buildCoordinatorConfig(cfg)
		if err != nil {
			return err
		}

		statePath := cfg.Server.SyncStatePath
		store, err := state.Open(statePath)
		if err != nil && !errors.Is(err, state.ErrMalformed) {
			return fmt.Errorf("open state %s: %w", statePath, err)
		}

		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		slog.Info("listening", "addr", ln.Addr().String())

		coord := session.New(coordCfg, store)

		defer slog.Info("Bye!")
		return coord.Serve(cmd.Context(), ln)
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("config", "f", "", "Path to config file (JSON)")
	rootCmd.Flags().StringP("bind", "b", "", "Address to bind the server")
	rootCmd.Flags().IntP("port", "p", 0, "Port to bind the server")
	rootCmd.Flags().StringP("dataDir", "d", "", "Directory of synced files")
	rootCmd.Flags().StringP("key", "k", "", "Path to the shared symmetric key file")
	rootCmd.Flags().IntP("maxConnections", "m", 0, "Maximum concurrent client connections (stored in config; not enforced by the server)")

	if err := godotenv.Load(".env"); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Println("Error loading .env file", err)
			os.Exit(1)
		}
	} else {
		dotenvLoaded = true
	}
}

func main() {
	logging.Setup(os.Stdout, slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig initializes viper, reads config file/env vars/flags, and maps
// values onto config.Config, mirroring the teacher's loadConfig precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.Bind(v, cmd)

	var configPath string
	if cmd.Flag("config").Changed {
		configPath = cmd.Flag("config").Value.String()
	}

	cfg, err := config.FromViper(v, configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(true); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildCoordinatorConfig(cfg *config.Config) (session.Config, error) {
	idleTimeout, err := time.ParseDuration(cfg.Server.IdleTimeout)
	if err != nil {
		return session.Config{}, fmt.Errorf("server.idle_timeout: %w", err)
	}

	var key []byte
	if cfg.Server.KeyFile != "" {
		key, err = cryptoutil.LoadKey(cfg.Server.KeyFile)
		if err != nil {
			return session.Config{}, fmt.Errorf("load key file: %w", err)
		}
	}

	return session.Config{
		RootDir:     cfg.Server.SyncDir,
		Key:         key,
		IdleTimeout: idleTimeout,
		ScanOptions: scan.Options{
			Exclude:       scan.NewExcludeMatcher(cfg.Sync.ExcludePatterns),
			IncludeHidden: cfg.Sync.IncludeHidden,
		},
	}, nil
}
