package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/subtrack/subtrack/internal/config"
	"github.com/subtrack/subtrack/internal/pkg/postgres"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back database migrations",
		Long:      "migrate up applies every pending migration; migrate down rolls back the latest one.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}

			if err := postgres.Migrate(cfg.Database.URL, args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", args[0])
			return err
		},
	}
}
