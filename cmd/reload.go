// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// reloadCmd represents the reload command.
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the gateway configuration",
	Long: `Reload the gateway daemon's configuration file without restarting it.

Listener addresses and the session idle TTL only take effect on the next
process restart; the RTMP output template and SSRC domain settings apply
to sessions created after the call returns. Session timing applies to
sessions created after it by SIP registration, not to sessions created
through the HTTP publish API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReload(cmd.Context(), cli, cmd.OutOrStdout())
	},
}

func runReload(ctx context.Context, client ClientInterface, out io.Writer) error {
	if err := client.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration reloaded successfully")
	return nil
}
