// Package cli is the devtree command tree.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewRoot builds the devtree command.
func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "devtree",
		Short:         "DevTree profile and identity server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}

// stderrLogger keeps one-shot commands quiet on stdout, which carries their result.
func stderrLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
