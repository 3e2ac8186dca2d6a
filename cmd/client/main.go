package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jelasin/gosync/internal/config"
	"github.com/jelasin/gosync/internal/logging"
	"github.com/jelasin/gosync/internal/version"
)

var dotenvLoaded bool

var rootCmd = &cobra.Command{
	Use:     "gosync",
	Short:   "gosync client CLI",
	Version: version.Detailed(),
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "Path to config file (JSON)")
	rootCmd.PersistentFlags().StringP("local", "l", "", "Local directory to sync")
	rootCmd.PersistentFlags().StringP("server", "s", "", "Server address (host:port)")
	rootCmd.PersistentFlags().StringP("key", "k", "", "Path to the shared symmetric key file")
	rootCmd.PersistentFlags().IntP("timeout", "", 0, "Dial/idle timeout in seconds")
	rootCmd.PersistentFlags().IntP("retry", "", 0, "Retry count for a failed sync session")

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

// loadClientConfig mirrors cmd/server's loadConfig precedence (flag > env >
// file > default), bound to this command's local/server/key/timeout/retry
// flags instead of the server's bind/dataDir/key/maxConnections set.
func loadClientConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.Bind(v, cmd)

	var configPath string
	if cmd.Flags().Lookup("config").Changed {
		configPath = cmd.Flag("config").Value.String()
	}

	cfg, err := config.FromViper(v, configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(false); err != nil {
		return nil, err
	}
	return cfg, nil
}
