package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jelasin/gosync/internal/cryptoutil"
)

func init() {
	rootCmd.AddCommand(newKeygenCmd())
}

func newKeygenCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a shared symmetric key for encrypted transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cryptoutil.GenerateKey()
			if err != nil {
				return err
			}
			if err := cryptoutil.SaveKey(out, key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote key to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "gosync.key", "Output path for the generated key")
	return cmd
}
