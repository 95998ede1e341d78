/*
Package pool implements the bounded-concurrency scheduler that drives subsweep
resolutions. A [Pool] keeps exactly Concurrency tasks in flight until its input
runs dry, refilling a slot the moment a task finishes rather than waiting for a
whole batch, and streams results in completion order.

Usage

	p, err := pool.New[engine.Candidate, engine.ScanResult](pool.Config{
	    Concurrency: 25,
	    Policy:      pool.Drain,
	})
	if err != nil {
	    return err
	}
	for res := range p.Run(ctx, candidates, resolve) {
	    // aggregate res
	}
	if err := p.Err(); err != nil {
	    // scheduling fault
	}

# Cancellation

Cancelling the run context stops dispatching. With [Drain], tasks already
running complete and their results are still delivered; with [Abandon] they
see the cancelled context and their results are dropped. In both cases the
result channel closes only after every running task has returned.

# Acknowledgements

Tasks execute on a [gammazero/workerpool] sized to the concurrency limit; the
optional dispatch rate uses [golang.org/x/time/rate].

[gammazero/workerpool]: https://github.com/gammazero/workerpool
[golang.org/x/time/rate]: https://pkg.go.dev/golang.org/x/time/rate
*/
package pool
