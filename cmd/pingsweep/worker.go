//go:build linux

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/wowkster/ping-the-internet/internal/ipc"
	"github.com/wowkster/ping-the-internet/internal/prober"
	"github.com/wowkster/ping-the-internet/internal/progress"
	"github.com/wowkster/ping-the-internet/internal/rawicmp"
	"github.com/wowkster/ping-the-internet/internal/slash16"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

type workerCmd struct {
	verbose *bool
}

func newWorkerCmd(verbose *bool) *workerCmd {
	return &workerCmd{verbose: verbose}
}

// Command builds the `pingsweep worker` subcommand per spec §6's
// invocation contract: --socket, --max-connections, --retry-limit,
// --timeout-ms.
func (c *workerCmd) Command() *cobra.Command {
	var socketPath string
	var maxConnections uint
	var retryLimit int
	var timeoutMillis int
	var dataDir string
	var fatalFailureThreshold int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Connect to a master over a unix socket and probe assigned /16s",
		RunE: withSignalContext(func(ctx context.Context) error {
			log := newLogger(*c.verbose)

			conn, err := net.Dial("unix", socketPath)
			if err != nil {
				return fmt.Errorf("worker: dial %s: %w", socketPath, err)
			}
			defer conn.Close()

			socket, err := rawicmp.Open()
			if err != nil {
				return fmt.Errorf("worker: open raw icmp socket: %w", err)
			}
			defer socket.Close()

			limiter, err := prober.NewSemaphoreLimiter(maxConnections)
			if err != nil {
				return fmt.Errorf("worker: build limiter: %w", err)
			}

			counters := rawicmp.NewCounters(uint16(time.Now().UnixNano()))
			grid := progress.NewGrid(time.Now())

			probeCfg := prober.Config{
				Permits:        maxConnections,
				RetryLimit:     retryLimit,
				AttemptTimeout: time.Duration(timeoutMillis) * time.Millisecond,
			}

			sweep := func(ctx context.Context, target subnet.Subnet, onTransition func(addr uint32, state ipc.Slash32State)) (*slash16.Slash16Result, error) {
				base := target.Base()
				return prober.ProbeSlash16(ctx, socket, counters, limiter, grid, target, probeCfg, func(cc, dd uint8, state progress.Slash32State) {
					if onTransition == nil {
						return
					}
					onTransition(base|uint32(cc)<<8|uint32(dd), wireState(state))
				})
			}

			w := &ipc.Worker{
				Conn:                  conn,
				Sweep:                 sweep,
				DataDir:               dataDir,
				FatalFailureThreshold: fatalFailureThreshold,
			}

			log.Info("worker connected", "socket", socketPath)
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("worker: %w", err)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path to connect to (required)")
	cmd.Flags().UintVar(&maxConnections, "max-connections", 1024, "permit pool size (P)")
	cmd.Flags().IntVar(&retryLimit, "retry-limit", 2, "attempts per address on transport error (R)")
	cmd.Flags().IntVar(&timeoutMillis, "timeout-ms", 3500, "per-attempt reply timeout in milliseconds (T)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory to persist /16 results and the failure log")
	cmd.Flags().IntVar(&fatalFailureThreshold, "fatal-failure-threshold", 2048, "abort after this many cumulative all-error /24s")
	_ = cmd.MarkFlagRequired("socket")

	return cmd
}

func wireState(s progress.Slash32State) ipc.Slash32State {
	switch s {
	case progress.Slash32Pending:
		return ipc.Slash32Pending
	case progress.Slash32Success:
		return ipc.Slash32Succeeded
	case progress.Slash32Timeout:
		return ipc.Slash32TimedOut
	case progress.Slash32Error:
		return ipc.Slash32Errored
	default:
		return ipc.Slash32Scheduled
	}
}
