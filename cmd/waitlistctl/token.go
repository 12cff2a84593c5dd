package main

import (
	"fmt"
	"os"
	"time"

	"evently-waitlist/internal/shared/config"
	"evently-waitlist/internal/shared/middleware"
	"evently-waitlist/internal/users"
	"evently-waitlist/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newTokenCmd mints an access token without a login, for operators and
// scripts that act on behalf of an existing user
func newTokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
	)

	c := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			if !users.IsValidRole(role) {
				return fmt.Errorf("invalid --role %q", role)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			auth := middleware.NewAuth(cfg.JWT, logger.NewWithWriter(os.Stderr, cfg.LogLevel))
			token, err := auth.IssueAccessToken(id, email, users.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	c.Flags().StringVar(&userID, "user-id", "", "subject user id (required)")
	c.Flags().StringVar(&email, "email", "", "email claim")
	c.Flags().StringVar(&role, "role", string(users.RoleUser), "USER or ADMIN")
	c.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = c.MarkFlagRequired("user-id")
	return c
}
