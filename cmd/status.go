// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long: `Query the running gateway daemon for its status: uptime and the device
sessions currently registered, each with its SIP state and SSRC.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), cli, cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, client ClientInterface, out io.Writer) error {
	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to query status: %w", err)
	}
	fmt.Fprintln(out, status)
	return nil
}
