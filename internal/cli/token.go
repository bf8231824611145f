package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func newTokenCommand() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured secret",
		Long: `Issue a bearer token for local testing.

Production tokens come from the identity provider. The role claim is
informational: the service always reads the role from the directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			r := domain.Role(strings.ToUpper(role))
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := configLoader()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl)
			token, expiresAt, err := tokens.GenerateToken(userID, r, time.Now())
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "directory user id (token subject)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
