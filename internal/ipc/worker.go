package ipc

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/wowkster/ping-the-internet/internal/metrics"
	"github.com/wowkster/ping-the-internet/internal/slash16"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

// SweepFunc probes one /16, reporting every per-address state change
// through onTransition, and returns the aggregated result. It is the
// seam between this package and internal/prober: ipc stays buildable
// without pulling in the Linux-only raw-socket transport, and
// cmd/pingsweep supplies the real implementation.
type SweepFunc func(ctx context.Context, target subnet.Subnet, onTransition func(addr uint32, state Slash32State)) (*slash16.Slash16Result, error)

// DefaultStatsInterval is how often a Worker emits a Stats message
// while a /16 is in progress.
const DefaultStatsInterval = 2 * time.Second

// Worker is the client side of the master↔worker protocol: connect
// once, react to PingSlash16 messages until Shutdown, persist and
// report every completed /16, and treat any read/write failure on the
// connection as fatal.
//
// Grounded on e2e/internal/rpc/agent.go's connect-once,
// react-until-told-to-stop lifecycle shape.
type Worker struct {
	Conn          net.Conn
	Sweep         SweepFunc
	DataDir       string
	StatsInterval time.Duration
	// FatalFailureThreshold aborts the worker once this many all-Error
	// /24s have accumulated across every /16 it has probed. Zero means
	// no threshold.
	FatalFailureThreshold int

	allErrorSlash24Count int
}

// ErrFatalFailureThreshold is returned by Run when the worker has seen
// more than FatalFailureThreshold all-Error /24s, per spec §6's exit
// code 1 condition.
var ErrFatalFailureThreshold = fmt.Errorf("ipc: worker: fatal failure threshold exceeded")

// Run blocks, processing M2W messages until Shutdown, a failed sweep, or
// a connection error. ctx is passed to each sweep; canceling it ends Run
// only through the sweep in progress failing, not while Run is waiting
// for the next message. A connection error or malformed message is
// returned to the caller, who is expected to exit the process non-zero
// per spec §4.7's disconnection rule.
func (w *Worker) Run(ctx context.Context) error {
	enc := NewEncoder(w.Conn)
	dec := NewDecoder(w.Conn)

	for {
		msg, err := dec.DecodeM2W()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("ipc: worker: master closed connection without shutdown: %w", err)
			}
			return fmt.Errorf("ipc: worker: decode m2w: %w", err)
		}

		switch {
		case msg.Shutdown != nil:
			return nil
		case msg.PingSlash16 != nil:
			if err := w.handlePingSlash16(ctx, msg.PingSlash16.Addr, enc); err != nil {
				return err
			}
		default:
			return fmt.Errorf("ipc: worker: received empty m2w message")
		}
	}
}

func (w *Worker) handlePingSlash16(ctx context.Context, addr uint32, enc *Encoder) error {
	target, err := subnet.New(addr, subnet.MaskB)
	if err != nil {
		return fmt.Errorf("ipc: worker: invalid ping_slash16 target: %w", err)
	}

	counts := newLiveCounts()
	startedAt := time.Now()

	interval := w.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	done := make(chan struct{})
	var encErr error
	var encMu sync.Mutex
	safeEncode := func(m W2MMessage) {
		encMu.Lock()
		defer encMu.Unlock()
		if encErr != nil {
			return
		}
		if err := enc.EncodeW2M(m); err != nil {
			encErr = err
		}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				safeEncode(W2MMessage{Stats: counts.snapshot(startedAt)})
			}
		}
	}()

	onTransition := func(addr uint32, state Slash32State) {
		counts.record(state)
		if state == Slash32Succeeded || state == Slash32TimedOut || state == Slash32Errored {
			metrics.ProbeOutcomesTotal.WithLabelValues(string(state)).Inc()
		}
		safeEncode(W2MMessage{StateChanged: &StateChangedMessage{Addr: addr, State: state}})
	}

	result, sweepErr := w.Sweep(ctx, target, onTransition)
	close(done)

	if sweepErr != nil {
		return fmt.Errorf("ipc: worker: sweep %s: %w", target, sweepErr)
	}

	encMu.Lock()
	pending := encErr
	encMu.Unlock()
	if pending != nil {
		return fmt.Errorf("ipc: worker: write state_changed/stats: %w", pending)
	}

	if err := slash16.Save(w.DataDir, target, result); err != nil {
		return fmt.Errorf("ipc: worker: persist %s: %w", target, err)
	}

	n, logErr := appendFailureLog(w.DataDir, target, result)
	if logErr != nil {
		return fmt.Errorf("ipc: worker: %w", logErr)
	}
	w.allErrorSlash24Count += n
	if w.FatalFailureThreshold > 0 && w.allErrorSlash24Count > w.FatalFailureThreshold {
		return fmt.Errorf("%w: %d all-error /24s (threshold %d)", ErrFatalFailureThreshold, w.allErrorSlash24Count, w.FatalFailureThreshold)
	}

	if err := enc.EncodeW2M(W2MMessage{Results: resultsPtr(NewResultsMessage(result))}); err != nil {
		return fmt.Errorf("ipc: worker: write results: %w", err)
	}
	return nil
}

func resultsPtr(m ResultsMessage) *ResultsMessage { return &m }

// liveCounts tallies per-/32 state transitions for one /16 so the
// worker can report a Stats message without re-scanning the grid.
type liveCounts struct {
	mu                                                     sync.Mutex
	reserved, scheduled, pending, succeeded, timedOut, errored uint32
}

func newLiveCounts() *liveCounts {
	// Every address starts Scheduled (the grid resets to Scheduled at
	// the start of each /16); there is no separate Reserved phase once
	// a /16 is actually being probed.
	return &liveCounts{scheduled: 65536}
}

func (c *liveCounts) record(state Slash32State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch state {
	case Slash32Pending:
		c.scheduled--
		c.pending++
	case Slash32Succeeded:
		c.pending--
		c.succeeded++
	case Slash32TimedOut:
		c.pending--
		c.timedOut++
	case Slash32Errored:
		c.pending--
		c.errored++
	}
}

func (c *liveCounts) snapshot(startedAt time.Time) *StatsMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(startedAt)
	completed := c.succeeded + c.timedOut + c.errored

	var estimatedTotal, estimatedRemaining time.Duration
	if completed > 0 {
		estimatedTotal = elapsed * time.Duration(65536) / time.Duration(completed)
		if estimatedTotal > elapsed {
			estimatedRemaining = estimatedTotal - elapsed
		}
	}

	return &StatsMessage{
		Reserved:                 c.reserved,
		Scheduled:                c.scheduled,
		Pending:                  c.pending,
		Succeeded:                c.succeeded,
		TimedOut:                 c.timedOut,
		Errored:                  c.errored,
		ElapsedMillis:            uint64(elapsed.Milliseconds()),
		EstimatedRemainingMillis: uint64(estimatedRemaining.Milliseconds()),
		EstimatedTotalMillis:     uint64(estimatedTotal.Milliseconds()),
	}
}
