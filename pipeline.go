package boxtrain

import (
	"fmt"
	"io"
	"sync"
)

// BatchProvider is the dense-batch iterator the training and inference
// drivers consume.  Next returns io.EOF when the stream ends and Reset
// rewinds the stream for another epoch.
type BatchProvider interface {
	Next() (*DenseBatch, error)
	Reset() error
	Close() error
}

// BatchFunc transforms one ragged batch into its dense form.  The function
// owns the input batch, including releasing it, and is invoked from
// multiple workers concurrently.
type BatchFunc func(*Batch) (*DenseBatch, error)

// prefetchResult carries one transformed batch, or the error that took its
// place in the stream
type prefetchResult struct {
	dense *DenseBatch
	err   error
}

// prefetchJob pairs a ragged batch with the channel its result is owed to
type prefetchJob struct {
	batch *Batch
	out   chan prefetchResult
}

// Prefetcher pipelines batch transformation ahead of the consumer: while
// the driver consumes batch i, a bounded worker pool runs the transform on
// the following batches.  Results are delivered strictly in batcher order
// through an ordered queue of result channels whose capacity is the
// prefetch depth, which also caps in-flight memory.  A Prefetcher serves a
// single consumer; Next must not be called concurrently.
type Prefetcher struct {
	batcher *Batcher
	fn      BatchFunc
	workers int
	depth   int

	mu     sync.Mutex
	closed bool

	queue chan chan prefetchResult
	work  chan prefetchJob
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewPrefetcher starts a prefetch pipeline over the batcher with the given
// worker count and look-ahead depth
func NewPrefetcher(batcher *Batcher, fn BatchFunc, workers, depth int) (*Prefetcher, error) {

	if workers < 1 {
		return nil, fmt.Errorf("worker count %d, want >= 1: %w", workers, ErrConfig)
	}

	if depth < 1 {
		return nil, fmt.Errorf("prefetch depth %d, want >= 1: %w", depth, ErrConfig)
	}

	p := &Prefetcher{
		batcher: batcher,
		fn:      fn,
		workers: workers,
		depth:   depth,
	}

	p.start()

	return p, nil
}

// start spins up the feeder and worker goroutines for one pass over the
// batcher
func (p *Prefetcher) start() {

	p.queue = make(chan chan prefetchResult, p.depth)
	p.work = make(chan prefetchJob)
	p.stop = make(chan struct{})

	queue, work, stop := p.queue, p.work, p.stop

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer close(queue)
		defer close(work)

		for {
			batch, err := p.batcher.Next()

			if err == io.EOF {
				return
			}

			out := make(chan prefetchResult, 1)

			if err != nil {
				// deliver the failure at its position in the stream
				out <- prefetchResult{err: err}

				select {
				case queue <- out:
				case <-stop:
				}
				return
			}

			// reserving the queue slot first bounds the look-ahead
			select {
			case queue <- out:
			case <-stop:
				_ = batch.Close()
				return
			}

			select {
			case work <- prefetchJob{batch: batch, out: out}:
			case <-stop:
				// the queue slot was taken, settle it so draining
				// never blocks
				out <- prefetchResult{}
				_ = batch.Close()
				return
			}
		}
	}()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)

		go func() {
			defer p.wg.Done()

			for job := range work {
				dense, err := p.fn(job.batch)
				job.out <- prefetchResult{dense: dense, err: err}
			}
		}()
	}
}

// shutdown stops the current pass and releases every in-flight batch
func (p *Prefetcher) shutdown() {

	close(p.stop)

	for out := range p.queue {
		r := <-out
		if r.dense != nil {
			_ = r.dense.Close()
		}
	}

	p.wg.Wait()
}

// Next returns the next dense batch in batcher order.  A transform failure
// surfaces at the failed batch's position.  Returns io.EOF once the pass
// is complete or the prefetcher has been closed.
func (p *Prefetcher) Next() (*DenseBatch, error) {

	p.mu.Lock()
	closed := p.closed
	queue := p.queue
	p.mu.Unlock()

	if closed {
		return nil, io.EOF
	}

	out, ok := <-queue

	if !ok {
		return nil, io.EOF
	}

	r := <-out

	return r.dense, r.err
}

// Reset rewinds the pipeline for another pass: the current pass is stopped
// and drained, the underlying source is reset, and prefetching restarts
func (p *Prefetcher) Reset() error {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("prefetcher is closed: %w", ErrConfig)
	}

	p.shutdown()

	if err := p.batcher.Reset(); err != nil {
		p.closed = true
		return err
	}

	p.start()

	return nil
}

// Close stops the pipeline and releases all in-flight batches.  The
// underlying sample source remains the caller's to close.
func (p *Prefetcher) Close() error {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.shutdown()

	return nil
}
