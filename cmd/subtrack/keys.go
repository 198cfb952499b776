package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/subtrack/subtrack/internal/config"
	"github.com/subtrack/subtrack/internal/identity/jwt"
	"github.com/subtrack/subtrack/internal/notifications/webpush"
)

func newVAPIDKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for browser push notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			privateKey, publicKey, err := webpush.GenerateKeys()
			if err != nil {
				return fmt.Errorf("generate vapid keys: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"SUBTRACK_WEBPUSH__VAPID_PUBLIC_KEY=%s\nSUBTRACK_WEBPUSH__VAPID_PRIVATE_KEY=%s\n",
				publicKey, privateKey)
			return err
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an API token with the configured secret (development only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(opts.configPath)
			if err != nil {
				return err
			}
			if userID == "" {
				userID = cfg.Owner.UserID
			}
			if userID == "" {
				return errors.New("--user is required when owner.user_id is not configured")
			}

			auth, err := jwt.NewAuthenticator(cfg.JWT)
			if err != nil {
				return err
			}
			token, err := auth.GenerateToken(userID, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "token subject (default: owner.user_id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
