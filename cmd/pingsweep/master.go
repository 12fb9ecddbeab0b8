package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/wowkster/ping-the-internet/internal/config"
	"github.com/wowkster/ping-the-internet/internal/ipc"
	"github.com/wowkster/ping-the-internet/internal/planner"
	"github.com/wowkster/ping-the-internet/internal/progress"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

type masterCmd struct {
	configPath *string
	verbose    *bool
}

func newMasterCmd(configPath *string, verbose *bool) *masterCmd {
	return &masterCmd{configPath: configPath, verbose: verbose}
}

func (c *masterCmd) Command() *cobra.Command {
	var metricsAddr string
	var workerBinary string

	cmd := &cobra.Command{
		Use:   "master",
		Short: "Spawn workers and sweep the configured address range",
		RunE: withSignalContext(func(ctx context.Context) error {
			log := newLogger(*c.verbose)

			cfg, err := config.Load(*c.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("master: invalid config: %w", err)
			}

			start, err := subnet.Parse(cfg.Master.StartAddress)
			if err != nil {
				return fmt.Errorf("master: invalid master.start_address: %w", err)
			}

			if metricsAddr != "" {
				go serveMetrics(log, metricsAddr)
			}

			master := ipc.NewMaster(ipc.MasterConfig{
				WorkerCount:           cfg.Workers.Count,
				SocketDir:             cfg.Data.SocketDir,
				FatalFailureThreshold: cfg.Master.FatalFailureThreshold,
				Log:                   log,
				SpawnWorker: func(id int, socketPath string) *exec.Cmd {
					cmd := exec.CommandContext(ctx, workerBinary,
						"worker",
						"--socket", socketPath,
						"--max-connections", fmt.Sprint(cfg.Workers.MaxConnections),
						"--retry-limit", fmt.Sprint(cfg.Workers.RetryLimit),
						"--timeout-ms", fmt.Sprint(cfg.Workers.TimeoutMillis),
						"--data-dir", cfg.Data.Dir,
						"--fatal-failure-threshold", fmt.Sprint(cfg.Master.FatalFailureThreshold),
					)
					cmd.Stdout = os.Stdout
					cmd.Stderr = os.Stderr
					return cmd
				},
			})

			if err := master.Start(ctx); err != nil {
				return fmt.Errorf("master: start workers: %w", err)
			}
			defer master.Shutdown()

			grid := progress.NewGrid(time.Now())

			plannerCfg := planner.Config{DataDir: cfg.Data.Dir}
			err = planner.Run(ctx, master, grid, plannerCfg, start, func(row planner.Row) {
				log.Info("slash16 settled",
					"subnet", row.Subnet.Format(),
					"state", row.State.String(),
					"alive", row.Counts.Alive,
					"timed_out", row.Counts.TimedOut,
					"errored", row.Counts.Errored,
					"duration", row.Duration,
				)
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("master: sweep: %w", err)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
	cmd.Flags().StringVar(&workerBinary, "worker-binary", selfPath(), "path to the pingsweep binary used to spawn workers")

	return cmd
}

// selfPath returns the running binary's path, used as the default
// worker-binary so `pingsweep master` can re-exec itself with a
// `worker` subcommand without requiring the caller to name it.
func selfPath() string {
	p, err := os.Executable()
	if err != nil {
		return "pingsweep"
	}
	return p
}

func serveMetrics(log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "error", err)
	}
}
