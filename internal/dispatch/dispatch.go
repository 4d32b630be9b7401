// Package dispatch runs per-item sync steps either sequentially or in
// paced parallel batches.
//
// Concurrency only engages when explicitly enabled and the item count
// meets a minimum threshold; small runs always go sequential. Inside a
// batch, items start in specification order and may finish in any
// order, but results are reported by input index so callers see
// specification order. Batch N+1 never starts before batch N has fully
// completed and the pacing pause has elapsed.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Defaults for Options zero values.
const (
	DefaultMinItems   = 10
	DefaultBatchSize  = 8
	DefaultMaxWorkers = 4
	DefaultPause      = 500 * time.Millisecond
)

// Options controls dispatch behavior.
type Options struct {
	// Enabled turns on batched parallel dispatch. Off means strictly
	// sequential regardless of item count.
	Enabled bool

	// MinItems is the smallest run that dispatches concurrently;
	// below it parallelism overhead outweighs the win.
	MinItems int

	// BatchSize is the number of items per parallel batch.
	BatchSize int

	// MaxWorkers caps parallel workers within a batch.
	MaxWorkers int

	// Pause is the delay between batches, bounding request rate.
	Pause time.Duration

	// Sleep performs the inter-batch pause; nil means time.Sleep.
	Sleep func(time.Duration)

	// Logger records batch progress; nil means a stderr default.
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.MinItems <= 0 {
		o.MinItems = DefaultMinItems
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.Pause <= 0 {
		o.Pause = DefaultPause
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "[dispatch] ", log.LstdFlags)
	}
	return o
}

// Run processes n items through step and returns one error slot per
// item, indexed by input position. A failing (or panicking) step only
// marks its own slot; the batch and the run continue.
func Run(ctx context.Context, n int, opts Options, step func(ctx context.Context, i int) error) []error {
	opts = opts.withDefaults()
	errs := make([]error, n)

	if !opts.Enabled || n < opts.MinItems {
		for i := 0; i < n; i++ {
			errs[i] = runStep(ctx, i, step)
		}
		return errs
	}

	batches := 0
	for start := 0; start < n; start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > n {
			end = n
		}
		if batches > 0 {
			opts.Sleep(opts.Pause)
		}
		batches++

		runBatch(ctx, start, end, opts, step, errs)
	}
	opts.Logger.Printf("dispatched %d items in %d batches", n, batches)
	return errs
}

// runBatch fans the [start, end) index range out to a bounded worker
// pool and waits for all of it to finish.
func runBatch(ctx context.Context, start, end int, opts Options, step func(ctx context.Context, i int) error, errs []error) {
	size := end - start
	workers := opts.MaxWorkers
	if size < workers {
		workers = size
	}

	indexes := make(chan int, size)
	for i := start; i < end; i++ {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				errs[i] = runStep(ctx, i, step)
			}
		}()
	}
	wg.Wait()
}

// runStep invokes one step, converting a panic into an error so a
// single bad item cannot take down its batch.
func runStep(ctx context.Context, i int, step func(ctx context.Context, i int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item processor panicked: %v", r)
		}
	}()
	return step(ctx, i)
}
