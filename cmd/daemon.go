// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/otus/internal/config"
	"firestige.xyz/otus/internal/daemon"
	"firestige.xyz/otus/internal/log"
)

// daemonCmd runs the gateway itself in the foreground.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the gateway daemon in foreground",
	Long: `Run the GB28181 ingestion gateway in foreground.

Loads the configuration file, starts the SIP and media listeners and the
HTTP control API, then waits for a signal:

  SIGHUP           reload configuration in place
  SIGTERM, SIGINT  drain connections and exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context(), configFile)
	},
}

func runDaemon(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if err := log.Init(cfg.Log); err != nil {
		return err
	}

	d := daemon.New(cfgPath, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				log.L().Info("cmd: received SIGHUP, reloading configuration")
				if err := d.Reload(); err != nil {
					log.L().WithError(err).Warn("cmd: reload failed")
				}
			case syscall.SIGTERM, syscall.SIGINT:
				log.L().WithField("signal", sig.String()).Info("cmd: received shutdown signal")
				d.Shutdown()
				return
			}
		}
	}()

	return d.Run(ctx)
}
