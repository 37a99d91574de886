// Package cmd implements CLI commands using the cobra framework.
package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	socketPath string

	// cli is the control-plane client used by status/reload/stop. Set in
	// rootCmd's PersistentPreRunE, or injected directly by tests via
	// SetClient.
	cli ClientInterface
)

// SetClient injects a client for testing.
func SetClient(c ClientInterface) { cli = c }

// GetClient returns the currently configured client.
func GetClient() ClientInterface { return cli }

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gb28181gw",
	Short: "GB28181 video ingestion gateway",
	Long: `gb28181gw accepts GB28181 SIP device registrations, pulls their RTP-over-TCP
media streams, demuxes the MPEG-PS and remuxes it as RTMP for downstream
media servers.

The "daemon" subcommand runs the gateway itself; "status", "reload" and
"stop" control an already-running daemon over its Unix control socket.`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "daemon" || cmd.Name() == "start" || cli != nil {
			return nil
		}
		cli = NewHTTPClient(socketPath, 10*time.Second)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/gb28181gw/config.yaml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/gb28181gw.sock",
		"daemon control socket path")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(stopCmd)
}
