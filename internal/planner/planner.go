// Package planner implements the sequential /8→/16 walk that decides
// which /16 to probe next, skips anything already persisted, and
// records the resulting state transitions and stats rows.
//
// Grounded on telemetry/global-monitor/internal/gm/runner.go's Run/tick
// control loop shape (build work, execute, record, summarize) and
// internal/gm/planner_dz_icmp.go's BuildPlans naming convention, adapted
// from dedup-by-target-id to sequential-with-skip over the full IPv4
// space.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wowkster/ping-the-internet/internal/metrics"
	"github.com/wowkster/ping-the-internet/internal/progress"
	"github.com/wowkster/ping-the-internet/internal/slash16"
	"github.com/wowkster/ping-the-internet/internal/stats"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

// Executor probes and durably persists one /16, returning the result it
// persisted. Persistence lives inside the executor, not the planner: in
// the multi-process deployment the worker that runs the prober is the
// one that calls slash16.Save, keeping a single writer per /16.
type Executor interface {
	ProbeSlash16(ctx context.Context, target subnet.Subnet) (*slash16.Slash16Result, error)
}

// ExecutorFunc adapts a plain function to an Executor.
type ExecutorFunc func(ctx context.Context, target subnet.Subnet) (*slash16.Slash16Result, error)

// ProbeSlash16 implements Executor.
func (f ExecutorFunc) ProbeSlash16(ctx context.Context, target subnet.Subnet) (*slash16.Slash16Result, error) {
	return f(ctx, target)
}

// fatalExecutorError can be implemented by an error returned from
// Executor.ProbeSlash16 to abort the whole walk rather than just mark
// the current /16 Errored and continue to the next one. internal/ipc's
// Master uses this to stop the sweep once the globally observed
// all-error /24 count exceeds its configured threshold.
type fatalExecutorError interface {
	error
	Fatal() bool
}

// Row is one stats line the planner emits after each /16 it touches.
type Row struct {
	Subnet   subnet.Subnet
	State    progress.Slash16State
	Counts   stats.Counts
	Duration time.Duration
}

// OnRow is called once per /16 the planner visits, after its state has
// settled into Skipped, Completed, or Errored.
type OnRow func(Row)

// Config tunes a single run of the planner.
type Config struct {
	DataDir string
	Clock   clockwork.Clock
}

// Candidates yields every /16 from start (a /32, truncated to its first
// two octets) through 255.255.x.x, in ascending order. It is the pure
// address-space walk underlying Run, factored out so the ordering can
// be used without Run's one-at-a-time execution; Run is its only
// caller in this repository.
func Candidates(start subnet.Subnet) func(yield func(subnet.Subnet) bool) {
	startA, startB := start.Octet(0), start.Octet(1)
	return func(yield func(subnet.Subnet) bool) {
		for a := int(startA); a < 256; a++ {
			for b := 0; b < 256; b++ {
				if a == int(startA) && b < int(startB) {
					continue
				}
				target, err := subnet.New(uint32(a)<<24|uint32(b)<<16, subnet.MaskB)
				if err != nil {
					return
				}
				if !yield(target) {
					return
				}
			}
		}
	}
}

// Run walks /8 values from start's first octet to 255 and, within each,
// /16 values from start's second octet (or 0, for /8s after the first)
// to 255, invoking exec for every /16 not already present on disk. The
// walk is strictly sequential: /16 n+1 is never dispatched before /16 n
// has settled into Completed, Skipped, or Errored.
func Run(ctx context.Context, exec Executor, grid *progress.Grid, cfg Config, start subnet.Subnet, onRow OnRow) error {
	if start.Mask() != subnet.MaskD {
		return fmt.Errorf("planner: start address must be a /32, got /%d", start.Mask())
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var walkErr error
	for target := range Candidates(start) {
		if err := ctx.Err(); err != nil {
			walkErr = err
			break
		}
		if err := visitSlash16(ctx, exec, grid, cfg, clock, target, onRow); err != nil {
			walkErr = err
			break
		}
	}
	return walkErr
}

// visitSlash16 returns a non-nil error only when the Executor reports a
// fatal condition (see fatalExecutorError); an ordinary probe failure is
// recorded as an Errored row and swallowed so the walk continues.
func visitSlash16(ctx context.Context, exec Executor, grid *progress.Grid, cfg Config, clock clockwork.Clock, target subnet.Subnet, onRow OnRow) error {
	a, b := target.Octet(0), target.Octet(1)

	if slash16.Exists(cfg.DataDir, target) {
		grid.SetSlash16(a, b, progress.Slash16Skipped)
		metrics.Slash16CompletedTotal.WithLabelValues("skipped").Inc()
		emit(onRow, Row{Subnet: target, State: progress.Slash16Skipped})
		return nil
	}

	grid.SetSlash16(a, b, progress.Slash16Pending)
	startedAt := clock.Now()
	grid.BeginSlash16(a, b, startedAt)
	metrics.CurrentlyPinging.Reset()
	metrics.CurrentlyPinging.WithLabelValues(fmt.Sprintf("%d.%d", a, b)).Set(1)

	result, err := exec.ProbeSlash16(ctx, target)

	grid.EndSlash16()
	elapsed := clock.Since(startedAt)
	metrics.Slash16Duration.Observe(elapsed.Seconds())

	if err != nil {
		grid.SetSlash16(a, b, progress.Slash16Errored)
		metrics.Slash16CompletedTotal.WithLabelValues("errored").Inc()
		emit(onRow, Row{Subnet: target, State: progress.Slash16Errored, Duration: elapsed})
		if fe, ok := err.(fatalExecutorError); ok && fe.Fatal() {
			return fe
		}
		return nil
	}

	grid.SetSlash16(a, b, progress.Slash16Completed)
	metrics.Slash16CompletedTotal.WithLabelValues("completed").Inc()
	emit(onRow, Row{
		Subnet:   target,
		State:    progress.Slash16Completed,
		Counts:   stats.Reduce(result),
		Duration: elapsed,
	})
	return nil
}

func emit(onRow OnRow, row Row) {
	if onRow != nil {
		onRow(row)
	}
}
