package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fuomag9/notionsocial/internal/auth"
	"github.com/fuomag9/notionsocial/internal/database"
	"github.com/fuomag9/notionsocial/internal/oauth"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Database.Type != "postgres" {
				return errMemoryStore
			}
			if err := database.RunMigrations(a.cfg.Database, a.log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

func newPurgeStatesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-states",
		Short: "Delete expired OAuth authorization states",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Database.Type != "postgres" {
				return errMemoryStore
			}
			st, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := oauth.PurgeExpiredStates(cmd.Context(), st, time.Now(), a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired states\n", n)
			return nil
		},
	}
}

func newTokenCommand(a *app) *cobra.Command {
	var (
		email string
		name  string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Create the user if needed and print a session token",
		Long: `Look up the user by email, creating it when missing, and print a signed
session token. Send it as "Authorization: Bearer <token>" or in the session cookie.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Database.Type != "postgres" {
				return errMemoryStore
			}
			st, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			user, err := st.FindOrCreateUser(cmd.Context(), email, name)
			if err != nil {
				return fmt.Errorf("failed to find or create user: %w", err)
			}
			token, err := auth.Sign(user.ID, a.cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			a.log.Info().Str("user_id", user.ID).Dur("ttl", ttl).Msg("Session token issued")
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&name, "name", "", "User display name, used when the user is created")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "Token lifetime")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
