package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vulnverified/subsweep/internal/pool"
)

const (
	DefaultConcurrency = 25
	DefaultTimeout     = 3 * time.Second
)

// Options holds the runtime configuration for a single scan.
type Options struct {
	Concurrency    int
	Timeout        time.Duration // per resolution
	ProbeTimeout   time.Duration // per liveness probe; 0 = Timeout
	ScanTimeout    time.Duration // whole scan; 0 = unbounded
	Rate           float64       // resolutions started per second; 0 = unlimited
	CancelPolicy   pool.CancelPolicy
	DetectWildcard bool
}

func (o Options) withDefaults() Options {
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = o.Timeout
	}
	return o
}

// Coordinator owns at most one active scan session at a time and publishes
// its events to a sink.
type Coordinator struct {
	resolver Resolver
	sink     EventSink

	mu      sync.Mutex
	state   State
	current *Scan
}

// New returns an idle coordinator. A nil sink discards events.
func New(resolver Resolver, sink EventSink) *Coordinator {
	if sink == nil {
		sink = NopSink{}
	}
	return &Coordinator{
		resolver: resolver,
		sink:     sink,
		state:    StateIdle,
	}
}

// State returns the lifecycle state of the most recent session.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the most recent scan, or nil before the first one.
func (c *Coordinator) Current() *Scan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// StartScan validates the input, creates a fresh session and starts resolving
// in the background. Domain validation happens before any network activity.
// A wordlist without usable entries moves the coordinator to StateFailed.
func (c *Coordinator) StartScan(ctx context.Context, domain string, wordlist []string, opts Options) (*Scan, error) {
	domain, err := NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	p, err := pool.New[Candidate, ScanResult](pool.Config{
		Concurrency: opts.Concurrency,
		Policy:      opts.CancelPolicy,
		Rate:        opts.Rate,
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	stop := func() { cancel(errCancelled) }
	if opts.ScanTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, opts.ScanTimeout, errScanTimeout)
		stop = func() {
			cancelTimeout()
			cancel(errCancelled)
		}
	}

	c.mu.Lock()
	if c.current != nil && c.state == StateRunning {
		id := c.current.ID()
		c.mu.Unlock()
		stop()
		return nil, &ScanInProgressError{ID: id}
	}

	now := time.Now()
	scan := &Scan{
		cancel: func() { cancel(errCancelled) },
		done:   make(chan struct{}),
		session: Session{
			ID:         uuid.NewString(),
			Domain:     domain,
			State:      StateRunning,
			StartedAt:  now,
			Candidates: BuildCandidates(domain, wordlist),
			Results:    make(map[string]ScanResult),
		},
	}
	c.current = scan

	if len(scan.session.Candidates) == 0 {
		err := fmt.Errorf("%w: no usable entries for %s", ErrEmptyWordlist, domain)
		c.state = StateFailed
		scan.finish(StateFailed, now, err)
		c.mu.Unlock()
		stop()
		c.sink.Failed(FailedEvent{Err: err})
		close(scan.done)
		return nil, err
	}
	c.state = StateRunning
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"id":          scan.session.ID,
		"domain":      domain,
		"candidates":  len(scan.session.Candidates),
		"concurrency": opts.Concurrency,
	}).Debug("scan started")

	go c.run(runCtx, stop, scan, p, opts)
	return scan, nil
}

// Run starts a scan on a fresh coordinator and waits for it to finish.
func Run(ctx context.Context, resolver Resolver, sink EventSink, domain string, wordlist []string, opts Options) (Session, error) {
	scan, err := New(resolver, sink).StartScan(ctx, domain, wordlist, opts)
	if err != nil {
		return Session{}, err
	}
	return scan.Wait()
}

// run is the single writer of the session: it feeds candidates into the pool,
// aggregates results as they complete and emits events.
func (c *Coordinator) run(ctx context.Context, stop func(), scan *Scan, p *pool.Pool[Candidate, ScanResult], opts Options) {
	defer close(scan.done)

	sess := scan.Snapshot()
	total := len(sess.Candidates)
	c.sink.Started(StartedEvent{ID: sess.ID, Domain: sess.Domain, Total: total})

	var wildcards map[string]bool
	if opts.DetectWildcard {
		wildcards = c.detectWildcard(ctx, sess.Domain)
	}

	items := make(chan Candidate)
	go func() {
		defer close(items)
		for _, cand := range sess.Candidates {
			select {
			case items <- cand:
			case <-ctx.Done():
				return
			}
		}
	}()

	prober, _ := c.resolver.(ResultProber)
	resolve := func(ctx context.Context, cand Candidate) ScanResult {
		res := resolveWithTimeout(ctx, c.resolver, cand, opts.Timeout)
		if res.Found && prober != nil {
			res = probeWithTimeout(ctx, prober, res, opts.ProbeTimeout)
		}
		return res
	}
	for res := range p.Run(ctx, items, resolve) {
		if res.Found && len(wildcards) > 0 {
			res.Wildcard = allWildcard(res, wildcards)
		}
		completed, counters := scan.record(res)
		c.sink.Progress(ProgressEvent{
			Completed: completed,
			Total:     total,
			Result:    res,
			Counters:  counters,
		})
	}

	now := time.Now()
	final := scan.Snapshot()
	elapsed := now.Sub(final.StartedAt)

	switch {
	case p.Err() != nil:
		c.terminate(scan, StateFailed, now, p.Err())
		c.sink.Failed(FailedEvent{Err: p.Err()})
	case final.Completed < total && ctx.Err() != nil:
		reason := context.Cause(ctx)
		c.terminate(scan, StateCancelled, now, nil)
		c.sink.Cancelled(CancelledEvent{
			Completed: final.Completed,
			Total:     total,
			Counters:  final.Counters,
			Partial:   final.Sorted(),
			Reason:    reason.Error(),
			Elapsed:   elapsed,
		})
	case final.Completed < total:
		err := fmt.Errorf("%w: pool stopped after %d of %d candidates", pool.ErrPoolFault, final.Completed, total)
		c.terminate(scan, StateFailed, now, err)
		c.sink.Failed(FailedEvent{Err: err})
	default:
		c.terminate(scan, StateCompleted, now, nil)
		c.sink.Done(DoneEvent{Counters: final.Counters, Total: total, Elapsed: elapsed})
	}
	stop()

	log.WithFields(log.Fields{
		"id":        final.ID,
		"completed": final.Completed,
		"found":     final.Counters.Found,
		"elapsed":   elapsed,
	}).Debug("scan finished")
}

func (c *Coordinator) terminate(scan *Scan, state State, at time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scan.finish(state, at, err)
	if c.current == scan {
		c.state = state
	}
}

func (c *Coordinator) detectWildcard(ctx context.Context, domain string) map[string]bool {
	wd, ok := c.resolver.(WildcardDetector)
	if !ok {
		log.Debug("resolver does not support wildcard detection")
		return nil
	}
	addrs, err := wd.DetectWildcard(ctx, domain)
	if err != nil {
		log.WithError(err).WithField("domain", domain).Warn("wildcard detection failed")
		return nil
	}
	if len(addrs) == 0 {
		return nil
	}
	log.WithField("addresses", addrs).Info("wildcard DNS detected")
	set := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		set[a] = true
	}
	return set
}

func allWildcard(r ScanResult, wildcards map[string]bool) bool {
	addrs := r.Addresses
	if len(addrs) == 0 {
		addrs = []string{r.Address}
	}
	for _, a := range addrs {
		if !wildcards[a] {
			return false
		}
	}
	return true
}

// resolveWithTimeout bounds a single resolution. The resolver runs in its own
// goroutine so that one ignoring its context still cannot hold a pool slot
// past the timeout.
func resolveWithTimeout(ctx context.Context, r Resolver, cand Candidate, timeout time.Duration) ScanResult {
	host := cand.Hostname()
	start := time.Now()
	res, err := bounded(ctx, timeout, func(ctx context.Context) ScanResult {
		return r.Resolve(ctx, cand)
	})
	if err != nil {
		res = ScanResult{Hostname: host, Error: ErrTimeout}
		if !errors.Is(err, context.DeadlineExceeded) {
			res.Error = ErrNetwork
		}
	}

	res = normalize(res, host)
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return res
}

// probeWithTimeout runs the liveness probe on a found result with its own
// budget. Whatever happens, the resolution itself stands: a probe that fails
// or overruns yields ErrProbeFailed on a found result.
func probeWithTimeout(ctx context.Context, p ResultProber, res ScanResult, timeout time.Duration) ScanResult {
	start := time.Now()
	probed, err := bounded(ctx, timeout, func(ctx context.Context) ScanResult {
		return p.Probe(ctx, res)
	})
	if err != nil || !probed.Found {
		probed = res
		probed.StatusCode, probed.Server, probed.Title = 0, "", ""
		probed.Error = ErrProbeFailed
	}
	probed.Hostname = res.Hostname
	probed.Address = res.Address
	probed.Addresses = res.Addresses
	probed.Duration = res.Duration + time.Since(start)
	return probed
}

// bounded runs fn with a timeout in its own goroutine and returns the
// context's error if fn has not returned by then. A panic in fn is re-raised
// on the calling goroutine, where the pool turns it into a fault.
func bounded(ctx context.Context, timeout time.Duration, fn func(context.Context) ScanResult) (ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res      ScanResult
		panicked any
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				ch <- outcome{panicked: v}
			}
		}()
		ch <- outcome{res: fn(ctx)}
	}()

	select {
	case o := <-ch:
		if o.panicked != nil {
			panic(o.panicked)
		}
		return o.res, nil
	case <-ctx.Done():
		return ScanResult{}, ctx.Err()
	}
}

// Scan is a handle on a running or finished session.
type Scan struct {
	cancel func()
	done   chan struct{}

	mu      sync.Mutex
	session Session
}

// ID returns the session ID.
func (s *Scan) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ID
}

// Snapshot returns a deep copy of the session as it is right now.
func (s *Scan) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.clone()
}

// Cancel stops dispatching new candidates. The scan ends in StateCancelled
// with partial results unless every candidate had already completed.
func (s *Scan) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed once the session has reached a terminal state.
func (s *Scan) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the scan is over and returns the final session. The error
// is non-nil only for StateFailed; a cancelled scan is a valid, partial result.
func (s *Scan) Wait() (Session, error) {
	<-s.done
	sess := s.Snapshot()
	return sess, sess.Err
}

// record stores a result, last write wins for repeated hostnames, and keeps
// the counters consistent with the results map.
func (s *Scan) record(res ScanResult) (int, Counters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.session.Results[res.Hostname]; ok {
		s.session.Counters.add(old, -1)
		log.WithField("hostname", res.Hostname).Debug("duplicate candidate, keeping latest result")
	}
	s.session.Results[res.Hostname] = res
	s.session.Counters.add(res, 1)
	s.session.Completed++
	return s.session.Completed, s.session.Counters
}

func (s *Scan) finish(state State, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.State = state
	s.session.CompletedAt = at
	s.session.Err = err
}
