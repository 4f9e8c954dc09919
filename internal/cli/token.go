package cli

import (
	"errors"
	"fmt"

	"offline-sync-engine/pkg/jwt"

	"github.com/spf13/cobra"
)

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token [subject]",
		Short: "Print a bearer token for the local API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("JWT_SECRET is not set")
			}

			subject := "operator"
			if len(args) == 1 && args[0] != "" {
				subject = args[0]
			}

			token, err := jwt.GenerateToken(subject, cfg.Auth.TokenExpiration, cfg.Auth.Secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
