package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/logwirehq/logwire/pkg/common/logctx"
	"golang.org/x/time/rate"
)

// Spec describes the allowance: at most Times acquisitions per Per window.
type Spec struct {
	Times uint64
	Per   time.Duration
}

// Zero reports whether the spec permits nothing at all.
func (s Spec) Zero() bool {
	return s.Times == 0
}

// Limiter throttles successful Acquire/TryAcquire calls so that any window of
// the configured size sees at most the configured amount of them. A zero-rate
// spec blocks Acquire until the spec changes.
type Limiter struct {
	l *slog.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
	spec    Spec
	changed chan struct{}
}

func New(spec Spec, opts ...Option) *Limiter {
	var o options
	for _, opt := range opts {
		opt.apply(&o)
	}

	l := o.l
	if l == nil {
		l = logctx.NopLogger()
	}

	limit, burst := specToRate(spec)

	return &Limiter{
		l:       l,
		limiter: rate.NewLimiter(limit, burst),
		spec:    spec,
		changed: make(chan struct{}),
	}
}

func specToRate(spec Spec) (rate.Limit, int) {
	seconds := spec.Per.Seconds()

	switch {
	case spec.Times == 0:
		return rate.Limit(0), 0
	case seconds == 0:
		return rate.Inf, 1
	default:
		return rate.Limit(float64(spec.Times) / seconds), 1
	}
}

// SetSpec swaps the allowance. Goroutines blocked in Acquire pick the new
// spec up immediately.
func (l *Limiter) SetSpec(spec Spec) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if spec == l.spec {
		return
	}

	limit, burst := specToRate(spec)
	l.limiter.SetLimit(limit)
	l.limiter.SetBurst(burst)
	l.spec = spec

	close(l.changed)
	l.changed = make(chan struct{})

	l.l.Debug(
		"limiter spec updated",
		slog.Uint64("times", spec.Times),
		slog.Duration("per", spec.Per),
	)
}

// TryAcquire reports whether one acquisition is allowed right now.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	limiter := l.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Acquire blocks until one acquisition is allowed, the spec changes to allow
// it, or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		changed := l.changed
		spec := l.spec
		limiter := l.limiter
		l.mu.Unlock()

		if spec.Zero() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
				continue
			}
		}

		waitCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-changed:
				// spec swapped under us, restart the wait
				cancel()
			case <-waitCtx.Done():
			}
		}()

		err := limiter.Wait(waitCtx)
		cancel()

		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// wait interrupted by SetSpec, go again with the fresh spec
	}
}

// Reserve tells how long the caller would have to wait for the next
// acquisition, without consuming it. Routing probes use it to judge a
// throttle without spending the allowance.
func (l *Limiter) Reserve() time.Duration {
	l.mu.Lock()
	limiter := l.limiter
	l.mu.Unlock()

	r := limiter.Reserve()
	defer r.Cancel()

	return r.Delay()
}
