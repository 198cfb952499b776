package main

import (
	"github.com/spf13/cobra"
	"github.com/subtrack/subtrack/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "subtrack",
		Short:         "Track subscriptions and get reminded before they renew",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to a YAML config file (default: "+config.DefaultFile+" when present)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newReportCmd(opts),
		newTokenCmd(opts),
		newVAPIDKeysCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
