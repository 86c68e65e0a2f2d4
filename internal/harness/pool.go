package harness

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Work is the unit of dispatch a Pool hands each leased payload to. A
// non-nil error is treated as a ConfigError per spec.md §7: it aborts the
// run (Pool.Run returns it) rather than being folded into the result set.
type Work func(ctx context.Context, payload RequestPayload) (RequestStatistics, error)

// backoff is how long a worker cooperatively yields before retrying
// GetItem after finding the queue exhausted-but-not-drained (every other
// session is currently checked out by a sibling worker). There is no
// condition variable wake-up in this design, by construction (spec.md §5):
// workers poll, trading a little latency for a queue with no blocking
// suspension points other than its own mutex.
const backoff = time.Millisecond

// Pool runs concurrency worker goroutines against a SessionQueue, each
// repeatedly leasing a payload, invoking f, and pushing the resulting
// RequestStatistics into a shared, order-unspecified result set per
// spec.md §4.4. Run blocks until the queue is drained and every worker has
// exited; the returned slice order is not meaningful.
type Pool struct {
	queue       *SessionQueue
	concurrency int
	work        Work
}

// NewPool builds a Pool over queue with the given number of worker
// goroutines (grounded on the reference asyncpool's N-coroutine model,
// fanned out here via golang.org/x/sync/errgroup as the pack's idiom for
// bounded concurrent work, e.g. internal/tools/web/fetch_tool.go).
func NewPool(queue *SessionQueue, concurrency int, work Work) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{queue: queue, concurrency: concurrency, work: work}
}

// Run drives the pool to completion and returns every collected
// RequestStatistics. If any worker's Work call returns an error, Run stops
// feeding new work to every worker and returns that error alongside
// whatever results had already been collected.
func (p *Pool) Run(ctx context.Context) ([]RequestStatistics, error) {
	var (
		mu      sync.Mutex
		results []RequestStatistics
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return nil
				}
				lease, found := p.queue.GetItem()
				if !found {
					if p.queue.Drained() {
						return nil
					}
					select {
					case <-gctx.Done():
						return nil
					case <-time.After(backoff):
					}
					continue
				}
				stat, err := p.runOne(gctx, lease)
				if err != nil {
					return err
				}
				mu.Lock()
				results = append(results, stat)
				mu.Unlock()
			}
		})
	}
	err := g.Wait()
	return results, err
}

func (p *Pool) runOne(ctx context.Context, lease *Lease) (RequestStatistics, error) {
	defer lease.Release()
	payload := lease.Payload()
	return p.work(ctx, payload)
}
