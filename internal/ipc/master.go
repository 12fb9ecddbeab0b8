package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/wowkster/ping-the-internet/internal/metrics"
	"github.com/wowkster/ping-the-internet/internal/slash16"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

// MasterConfig configures a worker pool and how to spawn each member.
type MasterConfig struct {
	// WorkerCount is the number of worker subprocesses to spawn (N).
	WorkerCount int
	// SocketDir is where per-worker unix-domain sockets are created.
	SocketDir string
	// SpawnWorker builds the command used to start worker id, given the
	// unix socket path it must connect to.
	SpawnWorker func(id int, socketPath string) *exec.Cmd
	// FatalFailureThreshold aborts the whole sweep once this many
	// all-error /24s have been observed cumulatively across every /16
	// dispatched so far.
	FatalFailureThreshold int
	Log                   *slog.Logger
}

// Master supervises N worker subprocesses over unix-domain sockets and
// dispatches one /16 at a time to an idle worker, redispatching to a
// different worker on disconnection.
//
// Grounded on client/doublezerod/internal/runtime/run.go's unix
// listener setup (bind, chmod, deferred unlink) and
// client/doublezerod/internal/probing/default.go's
// backoff.NewExponentialBackOff usage for bounded retry.
type Master struct {
	cfg MasterConfig
	log *slog.Logger

	mu      sync.Mutex
	workers []*workerHandle
	idle    chan *workerHandle

	failures         int
	allErrorSlash24s int
}

// globalThresholdError marks the sweep as unrecoverable: the total
// number of all-error /24s observed across every /16 this master has
// dispatched (to any worker) has exceeded FatalFailureThreshold, so
// continuing to the next /16 would just keep mis-reporting local
// breakage as internet-wide unreachability. internal/planner checks
// Fatal() to stop the walk instead of logging one more Errored row.
type globalThresholdError struct{ err error }

func (e *globalThresholdError) Error() string { return e.err.Error() }
func (e *globalThresholdError) Unwrap() error { return e.err }
func (e *globalThresholdError) Fatal() bool   { return true }

type workerHandle struct {
	id   int
	conn net.Conn
	enc  *Encoder

	mu      sync.Mutex // serializes writes and the in-flight request slot
	pending chan workerOutcome
	dead    bool
}

type workerOutcome struct {
	results *ResultsMessage
	err     error
}

// NewMaster constructs a Master. Call Start to spawn and connect every
// worker before dispatching any /16s.
func NewMaster(cfg MasterConfig) *Master {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.FatalFailureThreshold <= 0 {
		cfg.FatalFailureThreshold = 2048
	}
	return &Master{cfg: cfg, log: log}
}

// Start spawns every configured worker and blocks until each has
// connected, or ctx is canceled, or any worker fails to spawn/bind.
func (m *Master) Start(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.SocketDir, 0o755); err != nil {
		return fmt.Errorf("ipc: master: create socket dir: %w", err)
	}

	m.workers = make([]*workerHandle, m.cfg.WorkerCount)
	m.idle = make(chan *workerHandle, m.cfg.WorkerCount)

	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < m.cfg.WorkerCount; id++ {
		id := id
		g.Go(func() error { return m.spawnAndAccept(ctx, id) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, w := range m.workers {
		m.idle <- w
	}
	return nil
}

func (m *Master) spawnAndAccept(ctx context.Context, id int) error {
	socketPath := filepath.Join(m.cfg.SocketDir, fmt.Sprintf("%d.sock", id))
	_ = os.Remove(socketPath)

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("ipc: master: worker %d: bind socket: %w", id, err)
	}
	defer os.Remove(socketPath)

	cmd := m.cfg.SpawnWorker(id, socketPath)
	if err := cmd.Start(); err != nil {
		lis.Close()
		return fmt.Errorf("ipc: master: worker %d: spawn: %w", id, err)
	}

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := lis.Accept()
		acceptCh <- acceptResult{conn, err}
	}()

	select {
	case res := <-acceptCh:
		lis.Close()
		if res.err != nil {
			return fmt.Errorf("ipc: master: worker %d: accept: %w", id, res.err)
		}
		m.log.Info("worker connected", "worker_id", id)
		w := &workerHandle{id: id, conn: res.conn, enc: NewEncoder(res.conn), pending: make(chan workerOutcome, 1)}
		m.workers[id] = w
		metrics.WorkersConnected.Inc()
		go m.readLoop(w)
		return nil
	case <-ctx.Done():
		lis.Close()
		return ctx.Err()
	}
}

func (m *Master) readLoop(w *workerHandle) {
	dec := NewDecoder(w.conn)
	for {
		msg, err := dec.DecodeW2M()
		if err != nil {
			m.markDead(w, fmt.Errorf("ipc: master: worker %d: connection failed: %w", w.id, err))
			return
		}

		switch {
		case msg.StateChanged != nil:
			m.log.Debug("state changed", "worker_id", w.id, "addr", msg.StateChanged.Addr, "state", msg.StateChanged.State)
		case msg.Stats != nil:
			m.log.Debug("worker stats", "worker_id", w.id, "succeeded", msg.Stats.Succeeded, "timed_out", msg.Stats.TimedOut, "errored", msg.Stats.Errored)
		case msg.Results != nil:
			select {
			case w.pending <- workerOutcome{results: msg.Results}:
			default:
			}
		}
	}
}

func (m *Master) markDead(w *workerHandle, err error) {
	w.mu.Lock()
	already := w.dead
	w.dead = true
	w.mu.Unlock()
	if already {
		return
	}
	metrics.WorkersConnected.Dec()
	metrics.WorkerDisconnectsTotal.Inc()
	m.log.Error("worker disconnected", "worker_id", w.id, "error", err)
	select {
	case w.pending <- workerOutcome{err: err}:
	default:
	}
}

// ErrNoIdleWorkers is returned by ProbeSlash16 if ctx is canceled while
// waiting for a worker to become available.
var ErrNoIdleWorkers = errors.New("ipc: master: no idle workers available")

// ProbeSlash16 implements planner.Executor: it dispatches target to the
// next idle, live worker, redispatching to a different worker with
// bounded backoff if the assigned worker disconnects mid-probe.
// Persistence happens inside the worker; the returned result reflects
// what that worker already wrote to disk. Once the cumulative count of
// all-error /24s across every /16 this master has seen exceeds
// FatalFailureThreshold, it returns a fatal error alongside the (still
// valid, already-persisted) result so the caller can abort the sweep.
func (m *Master) ProbeSlash16(ctx context.Context, target subnet.Subnet) (*slash16.Slash16Result, error) {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(5*time.Second),
		backoff.WithMaxElapsedTime(time.Minute),
	)
	bo := backoff.WithContext(b, ctx)

	var result *ResultsMessage
	op := func() error {
		w, err := m.acquireIdle(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		outcome, err := m.dispatch(ctx, w, target.Base())
		if err != nil {
			m.mu.Lock()
			m.failures++
			m.mu.Unlock()
			return err
		}
		result = outcome
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}

	domain := result.ToSlash16Result()

	m.mu.Lock()
	m.allErrorSlash24s += len(domain.AllErrorSlash24s())
	over := m.allErrorSlash24s > m.cfg.FatalFailureThreshold
	m.mu.Unlock()
	if over {
		return domain, &globalThresholdError{fmt.Errorf("ipc: master: %d all-error /24s observed, exceeds fatal threshold %d", m.allErrorSlash24s, m.cfg.FatalFailureThreshold)}
	}

	return domain, nil
}

func (m *Master) acquireIdle(ctx context.Context) (*workerHandle, error) {
	select {
	case w := <-m.idle:
		w.mu.Lock()
		dead := w.dead
		w.mu.Unlock()
		if dead {
			return m.acquireIdle(ctx)
		}
		return w, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNoIdleWorkers, ctx.Err())
	}
}

func (m *Master) dispatch(ctx context.Context, w *workerHandle, addr uint32) (*ResultsMessage, error) {
	defer func() { m.idle <- w }()

	if err := w.enc.EncodeM2W(M2WMessage{PingSlash16: &PingSlash16Message{Addr: addr}}); err != nil {
		m.markDead(w, err)
		return nil, err
	}

	select {
	case outcome := <-w.pending:
		if outcome.err != nil {
			return nil, outcome.err
		}
		return outcome.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown sends Shutdown to every connected worker and closes its
// connection.
func (m *Master) Shutdown() {
	for _, w := range m.workers {
		if w == nil {
			continue
		}
		_ = w.enc.EncodeM2W(M2WMessage{Shutdown: &ShutdownMessage{}})
		_ = w.conn.Close()
	}
}
