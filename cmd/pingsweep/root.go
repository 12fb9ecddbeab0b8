// Command pingsweep drives an ICMP internet sweep: a master process
// walks the IPv4 address space /16 at a time and dispatches each one to
// an idle worker subprocess over a unix-domain socket.
//
// Grounded on e2e/internal/devnet/cmd/root.go's root command +
// one-subcommand-type-per-mode shape and
// controlplane/internet-latency-collector/cmd/collector/main.go's
// persistent-flags-plus-subcommands layout.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wowkster/ping-the-internet/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:   "pingsweep",
		Short: "Sweep the IPv4 address space with ICMP echo requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var verbose bool
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a master TOML config file")

	root.AddCommand(
		newMasterCmd(&configPath, &verbose).Command(),
		newWorkerCmd(&verbose).Command(),
		newStatsCmd().Command(),
	)

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

func newLogger(verbose bool) *slog.Logger {
	return logging.New(os.Stdout, verbose)
}

func withSignalContext(f func(ctx context.Context) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return f(ctx)
	}
}
