// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command.
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the gateway daemon",
	Long: `Ask the running gateway daemon to shut down gracefully.

The daemon stops accepting new SIP and media connections, drains
in-flight ones, and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), cli, cmd.OutOrStdout())
	},
}

func runStop(ctx context.Context, client ClientInterface, out io.Writer) error {
	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	fmt.Fprintln(out, "✓ Shutdown requested")
	return nil
}
