package cmd

import (
	"os"
	"syscall"

	"github.com/spf13/cobra"
)

var startForeground bool

// startCmd is a convenience wrapper around daemonCmd: by default
// (--foreground=true) it runs the daemon directly, which systemd units and
// containers want; with --foreground=false it replaces the current process
// image with `daemon` and the same flags, without forking or detaching.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the GB28181 ingestion gateway.

With --foreground (the default under systemd/containers, where the
process itself is already supervised), this is equivalent to running
"gb28181gw daemon" directly. With --foreground=false, the process execs
"gb28181gw daemon" in its own place; it does not fork or detach from the
terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if startForeground {
			return runDaemon(cmd.Context(), configFile)
		}
		return daemonize()
	},
}

func init() {
	startCmd.Flags().BoolVarP(&startForeground, "foreground", "f", true,
		"run in foreground instead of daemonizing")
	rootCmd.AddCommand(startCmd)
}

func daemonize() error {
	execPath, err := os.Executable()
	if err != nil {
		return err
	}
	return syscall.Exec(execPath, []string{execPath, "daemon", "--config", configFile, "--socket", socketPath}, os.Environ())
}
