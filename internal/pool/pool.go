package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidConcurrency is returned by New for a concurrency below 1.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	// ErrPoolFault reports an internal scheduling fault, such as a task panic.
	ErrPoolFault = errors.New("worker pool fault")
)

// CancelPolicy decides what happens to in-flight tasks when the run context is
// cancelled. New tasks are never dispatched after cancellation either way.
type CancelPolicy int

const (
	// Drain lets in-flight tasks finish with a context detached from the
	// cancellation, and emits their results.
	Drain CancelPolicy = iota
	// Abandon hands in-flight tasks the cancelled context and drops whatever
	// they return.
	Abandon
)

func (p CancelPolicy) String() string {
	switch p {
	case Drain:
		return "drain"
	case Abandon:
		return "abandon"
	}
	return fmt.Sprintf("CancelPolicy(%d)", int(p))
}

// ParseCancelPolicy parses "drain" or "abandon".
func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drain":
		return Drain, nil
	case "abandon":
		return Abandon, nil
	}
	return Drain, fmt.Errorf("unknown cancel policy %q (want drain or abandon)", s)
}

// Config holds the pool options.
type Config struct {
	Concurrency int
	Policy      CancelPolicy
	Rate        float64 // max dispatches per second; 0 = unlimited
}

// Pool runs a task function over a stream of items with a fixed number of
// slots, refilling a slot as soon as its task completes.
type Pool[T, R any] struct {
	cfg        Config
	limiter    *rate.Limiter
	dispatched atomic.Int64

	mu  sync.Mutex
	err error
}

// New returns a pool for the given configuration.
func New[T, R any](cfg Config) (*Pool[T, R], error) {
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, cfg.Concurrency)
	}
	p := &Pool[T, R]{cfg: cfg}
	if cfg.Rate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	return p, nil
}

// Run dispatches items to fn and streams the results in completion order. The
// returned channel is closed once the input is exhausted (or the context is
// cancelled, or a fault occurred) and all in-flight tasks have returned.
//
// Items are pulled from the input only when a slot is free, and results are
// buffered for at most one slot's worth, so callers consuming the channel
// incrementally never cause the input to be materialized. Callers must drain
// the returned channel.
func (p *Pool[T, R]) Run(ctx context.Context, items <-chan T, fn func(context.Context, T) R) <-chan R {
	n := p.cfg.Concurrency
	out := make(chan R, n)
	slots := make(chan struct{}, n)
	workers := workerpool.New(n)

	dispatchCtx, stop := context.WithCancel(ctx)
	taskCtx := ctx
	if p.cfg.Policy == Drain {
		taskCtx = context.WithoutCancel(ctx)
	}

	log.WithField("concurrency", n).WithField("policy", p.cfg.Policy).Debug("pool started")

	go func() {
		defer func() {
			workers.StopWait()
			stop()
			close(out)
			log.WithField("dispatched", p.dispatched.Load()).Debug("pool stopped")
		}()
		for {
			select {
			case slots <- struct{}{}:
			case <-dispatchCtx.Done():
				return
			}
			item, ok := next(dispatchCtx, items)
			if !ok {
				return
			}
			if !p.throttle(dispatchCtx) {
				return
			}
			// Cancellation may have raced with the receive above.
			if dispatchCtx.Err() != nil {
				return
			}
			p.dispatched.Add(1)
			workers.Submit(func() {
				defer func() { <-slots }()
				r, ok := p.call(taskCtx, item, fn)
				if !ok {
					stop()
					return
				}
				if p.cfg.Policy == Abandon {
					if ctx.Err() != nil {
						return
					}
					select {
					case out <- r:
					case <-ctx.Done():
					}
					return
				}
				out <- r
			})
		}
	}()

	return out
}

// throttle blocks until the rate limiter admits the next dispatch. It only
// gives up when ctx is done, even if the next token is due after ctx's
// deadline.
func (p *Pool[T, R]) throttle(ctx context.Context) bool {
	if p.limiter == nil {
		return true
	}
	r := p.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return true
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		r.Cancel()
		return false
	}
}

// Err returns the fault that stopped the last run, if any.
func (p *Pool[T, R]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Dispatched returns the number of tasks handed to workers so far.
func (p *Pool[T, R]) Dispatched() int {
	return int(p.dispatched.Load())
}

func (p *Pool[T, R]) call(ctx context.Context, item T, fn func(context.Context, T) R) (r R, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			p.fail(fmt.Errorf("%w: task panicked: %v", ErrPoolFault, v))
		}
	}()
	return fn(ctx, item), true
}

func (p *Pool[T, R]) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
		log.WithError(err).Warn("pool fault")
	}
}

// next receives the next item unless the context is done first.
func next[T any](ctx context.Context, items <-chan T) (T, bool) {
	select {
	case item, ok := <-items:
		return item, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}
