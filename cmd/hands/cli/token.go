package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/handsdb/hands/internal/service"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Sign a bearer token with auth.jwt_secret. Send it as 'Authorization: Bearer <token>'
to every /api/v1 route and to /mcp. Tokens expire after auth.token_ttl unless
--ttl is given; --ttl 0 issues a token that never expires.`,
		Example: `  hands token
  hands token --subject desktop --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Auth.TokenTTL
			}

			authSvc := service.NewAuthService(cfg.Auth.JWTSecret)
			tok, err := authSvc.IssueJWT(cmd.Context(), subject, ttl)
			if errors.Is(err, service.ErrAuthDisabled) {
				return errors.New("auth.jwt_secret is not set; set it (or HANDS_AUTH_JWT_SECRET) to enable API authentication")
			}
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "Token subject (shows up in request logs)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default auth.token_ttl)")

	return cmd
}
