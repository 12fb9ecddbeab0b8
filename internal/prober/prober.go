//go:build linux

// Package prober drives the bounded-concurrency sweep of one /16: it
// walks all 65,536 addresses in interleaved order, admits at most P
// concurrent in-flight echoes through a permit pool, retries only on
// transport error, and aggregates the result into a *slash16.Slash16Result.
//
// Grounded on telemetry/global-monitor/internal/gm/targets.go's
// ExecuteProbes (semaphore + WaitGroup fan-out over a target list) and
// tools/uping's per-attempt retry shape, layered over internal/rawicmp.
package prober

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/wowkster/ping-the-internet/internal/pingoutcome"
	"github.com/wowkster/ping-the-internet/internal/progress"
	"github.com/wowkster/ping-the-internet/internal/rawicmp"
	"github.com/wowkster/ping-the-internet/internal/slash16"
	"github.com/wowkster/ping-the-internet/internal/subnet"
)

// Transport is the subset of *rawicmp.Socket the prober depends on, so
// tests can substitute a fake that never touches a real raw socket.
type Transport interface {
	SendEcho(ctx context.Context, dst net.IP, id, seq uint16, timeout time.Duration) (time.Duration, error)
}

// IDSeqSource is the subset of *rawicmp.Counters the prober depends on.
type IDSeqSource interface {
	NextID() uint16
	NextSeq() uint16
}

// Config tunes one sweep of a /16 (spec §4.4).
type Config struct {
	// Permits bounds the number of concurrently in-flight echoes (P).
	Permits uint
	// RetryLimit is the number of attempts per address (R). A value of 1
	// means no retries.
	RetryLimit int
	// AttemptTimeout is how long a single attempt waits for a reply.
	AttemptTimeout time.Duration
}

// DefaultConfig returns the spec's default tuning: P=1024, R=2, 3.5s.
func DefaultConfig() Config {
	return Config{
		Permits:        1024,
		RetryLimit:     2,
		AttemptTimeout: 3500 * time.Millisecond,
	}
}

// OnTransition is called every time an address's /32 state changes,
// letting a caller (the worker's IPC loop) stream StateChanged messages
// without the prober knowing anything about IPC. May be nil.
type OnTransition func(c, d uint8, state progress.Slash32State)

// jitterMillis returns a pseudo-random delay in [0, 256) milliseconds,
// the spec's "random_u8" stagger and retry-backoff jitter.
func jitterMillis() time.Duration {
	return time.Duration(rand.IntN(256)) * time.Millisecond
}

// sleepCtx sleeps for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProbeSlash16 sweeps every address of target (which must be a /16),
// returning the aggregated result. The grid's /32 cells are reset to
// Scheduled at the start and left reflecting the final per-address
// states on return.
//
// Addresses are dispatched in interleaved order (round r, stride s ->
// 3rd octet = s, 4th octet = r) so that no single /24 is bursted: the
// k-th address admitted through the permit pool, for k < 256, always
// targets 3rd octet k, 4th octet 0. Permits are acquired synchronously
// in this dispatch loop, one per address in that order, which is what
// makes the ordering guarantee hold regardless of how fast individual
// probes complete.
func ProbeSlash16(
	ctx context.Context,
	transport Transport,
	counters IDSeqSource,
	limiter Limiter,
	grid *progress.Grid,
	target subnet.Subnet,
	cfg Config,
	onTransition OnTransition,
) (*slash16.Slash16Result, error) {
	if target.Mask() != subnet.MaskB {
		panic("prober: ProbeSlash16: target is not a /16")
	}
	if cfg.RetryLimit < 1 {
		cfg.RetryLimit = 1
	}

	grid.ResetSlash32()

	var outcomes [256][256]pingoutcome.Outcome
	var wg sync.WaitGroup

	base := target.Base()

	for _, pair := range interleavedAddressOrder() {
		c, d := pair[0], pair[1]

		release, ok := limiter.Acquire(ctx)
		if !ok {
			wg.Wait()
			return nil, fmt.Errorf("prober: acquire permit for %s.%d.%d: %w", target.Format(), c, d, ctx.Err())
		}

		wg.Add(1)
		go func(c, d uint8, release func()) {
			defer wg.Done()
			defer release()

			addr := base | uint32(c)<<8 | uint32(d)
			outcome := runOne(ctx, transport, counters, grid, addr, c, d, cfg, onTransition)
			outcomes[c][d] = outcome
		}(c, d, release)
	}

	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return aggregate(&outcomes), nil
}

// runOne executes the full per-address protocol: stagger sleep, mark
// Pending, up to cfg.RetryLimit attempts (retrying only on transport
// error), mark the terminal state, and report both transitions.
func runOne(
	ctx context.Context,
	transport Transport,
	counters IDSeqSource,
	grid *progress.Grid,
	addr uint32,
	c, d uint8,
	cfg Config,
	onTransition OnTransition,
) pingoutcome.Outcome {
	stagger := time.Duration(c)*4*time.Millisecond + jitterMillis()
	if err := sleepCtx(ctx, stagger); err != nil {
		grid.SetSlash32(c, d, progress.Slash32Error)
		notify(onTransition, c, d, progress.Slash32Error)
		return pingoutcome.Error()
	}

	grid.SetSlash32(c, d, progress.Slash32Pending)
	notify(onTransition, c, d, progress.Slash32Pending)

	dst := addrToIP(addr)

	var outcome pingoutcome.Outcome
	for attempt := 1; attempt <= cfg.RetryLimit; attempt++ {
		id := counters.NextID()
		seq := counters.NextSeq()

		rtt, err := transport.SendEcho(ctx, dst, id, seq, cfg.AttemptTimeout)
		switch {
		case err == nil:
			outcome = pingoutcome.Success(uint32(rtt.Milliseconds()))
		case errors.Is(err, rawicmp.ErrTimeout):
			outcome = pingoutcome.Timeout()
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			outcome = pingoutcome.Error()
		default:
			// Transport error: retry, unless this was the last attempt.
			outcome = pingoutcome.Error()
			if attempt < cfg.RetryLimit {
				_ = sleepCtx(ctx, jitterMillis())
				continue
			}
		}
		break
	}

	state := progress.Slash32Timeout
	switch outcome.Tag() {
	case pingoutcome.TagSuccess:
		state = progress.Slash32Success
	case pingoutcome.TagError:
		state = progress.Slash32Error
	}
	grid.SetSlash32(c, d, state)
	notify(onTransition, c, d, state)

	return outcome
}

func notify(onTransition OnTransition, c, d uint8, state progress.Slash32State) {
	if onTransition != nil {
		onTransition(c, d, state)
	}
}

// aggregate folds 65536 outcomes into a Slash16Result, eliding any /24
// whose 256 outcomes are all Timeout (spec §4.3's all-timeout omission).
func aggregate(outcomes *[256][256]pingoutcome.Outcome) *slash16.Slash16Result {
	result := &slash16.Slash16Result{}
	for c := 0; c < 256; c++ {
		allTimeout := true
		for d := 0; d < 256; d++ {
			if !outcomes[c][d].IsTimeout() {
				allTimeout = false
				break
			}
		}
		if allTimeout {
			continue
		}
		s24 := slash16.Slash24Result(outcomes[c])
		result[c] = &s24
	}
	return result
}

// AllErrorSlash24s returns the 3rd-octet indices of every present /24
// whose 256 outcomes are all Error, the signal the worker's failure log
// uses. See slash16.Slash16Result.AllErrorSlash24s.
func AllErrorSlash24s(result *slash16.Slash16Result) []uint8 {
	return result.AllErrorSlash24s()
}

func addrToIP(addr uint32) net.IP {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// interleavedAddressOrder returns the dispatch order of (3rd octet, 4th
// octet) pairs for a full /16: round r over the 4th octet, stride s over
// the 3rd octet, so that the k-th pair for k < 256 is (k, 0) and no
// single /24 is bursted before its neighbors have each received one
// probe.
func interleavedAddressOrder() [65536][2]uint8 {
	var order [65536][2]uint8
	i := 0
	for r := 0; r < 256; r++ {
		for s := 0; s < 256; s++ {
			order[i] = [2]uint8{uint8(s), uint8(r)}
			i++
		}
	}
	return order
}
