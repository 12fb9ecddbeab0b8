package prober

import (
	"context"
	"errors"
	"fmt"
)

// Limiter bounds concurrent access to the ICMP permit pool (spec §4.4,
// §9: "process-wide mutable state ... acceptable as explicitly scoped
// singletons ... passed in via a context object rather than importing
// globals, so tests can inject fakes").
//
// Grounded on client/doublezerod/internal/probing/limiter.go.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	String() string
}

// SemaphoreLimiter implements Limiter using a bounded channel semaphore.
type SemaphoreLimiter struct {
	maxConcurrency uint
	sem            chan struct{}
}

// NewSemaphoreLimiter constructs a limiter that admits at most
// maxConcurrency concurrent holders.
func NewSemaphoreLimiter(maxConcurrency uint) (*SemaphoreLimiter, error) {
	if maxConcurrency == 0 {
		return nil, errors.New("prober: maxConcurrency must be > 0")
	}
	return &SemaphoreLimiter{
		maxConcurrency: maxConcurrency,
		sem:            make(chan struct{}, int(maxConcurrency)),
	}, nil
}

// String describes the limiter's capacity.
func (l *SemaphoreLimiter) String() string {
	return fmt.Sprintf("SemaphoreLimiter(maxConcurrency=%d)", l.maxConcurrency)
}

// Acquire reserves one permit, blocking until available or ctx is done.
func (l *SemaphoreLimiter) Acquire(ctx context.Context) (func(), bool) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}
