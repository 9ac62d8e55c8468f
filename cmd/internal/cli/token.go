package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"devtree/cmd/security/token"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Session token tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a session token with the configured secret and print its subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := token.LoadConfigFromEnv()
			if err != nil {
				return err
			}
			svc, err := token.New(cfg)
			if err != nil {
				return err
			}
			sub, err := svc.Verify(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), sub)
			return nil
		},
	})
	return cmd
}
