// Package worker drives locks the way the demo processes do: a reader loop,
// a writer loop, and a stress harness that runs many of both at once.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/xproc-rwlock/internal/logger"
	"github.com/srediag/xproc-rwlock/pkg/rwlock"
)

var workerLogger = logger.New("worker", nil)

// errNotAcquired marks a timed-out or rejected attempt so backoff retries it.
var errNotAcquired = errors.New("worker: lock not acquired")

// LoopOptions configures RunReader and RunWriter.
type LoopOptions struct {
	// Iterations is the number of critical sections to attempt.
	Iterations int
	// Hold is how long each critical section lasts.
	Hold time.Duration
	// RetryFor bounds the backoff spent retrying one attempt. Zero disables retries.
	RetryFor time.Duration
	// Out receives one line per critical section. Nil means os.Stdout.
	Out io.Writer
}

// DefaultReaderOptions mirrors the reader demo: 30 quick reads.
func DefaultReaderOptions() LoopOptions {
	return LoopOptions{Iterations: 30}
}

// DefaultWriterOptions mirrors the writer demo: 10 writes of 300ms each.
func DefaultWriterOptions() LoopOptions {
	return LoopOptions{Iterations: 10, Hold: 300 * time.Millisecond}
}

// LoopResult counts what a loop achieved.
type LoopResult struct {
	Entered int
	Missed  int
}

// RunReader enters and exits the read lock opts.Iterations times.
func RunReader(ctx context.Context, l *rwlock.Lock, opts LoopOptions) (LoopResult, error) {
	return run(ctx, "Read", l.TryEnterReadLock, l.ExitReadLock, opts)
}

// RunWriter enters and exits the write lock opts.Iterations times.
func RunWriter(ctx context.Context, l *rwlock.Lock, opts LoopOptions) (LoopResult, error) {
	return run(ctx, "Write", l.TryEnterWriteLock, l.ExitWriteLock, opts)
}

func run(ctx context.Context, label string, enter func() (bool, error), exit func() error, opts LoopOptions) (LoopResult, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	var res LoopResult
	for i := 0; i < opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := attempt(ctx, enter, opts.RetryFor)
		if errors.Is(err, errNotAcquired) {
			res.Missed++
			workerLogger.Infof("%s %d not acquired", label, i)
			continue
		}
		if err != nil {
			return res, err
		}
		if opts.Hold > 0 {
			time.Sleep(opts.Hold)
		}
		fmt.Fprintf(out, "%s %d Critical Section\n", label, i)
		if err := exit(); err != nil {
			return res, fmt.Errorf("%s %d exit: %w", label, i, err)
		}
		res.Entered++
	}
	return res, nil
}

// attempt calls enter, retrying timed-out attempts with exponential backoff
// for up to retryFor. The lock itself never retries.
func attempt(ctx context.Context, enter func() (bool, error), retryFor time.Duration) error {
	once := func() error {
		ok, err := enter()
		if err != nil {
			return err
		}
		if !ok {
			return errNotAcquired
		}
		return nil
	}
	if retryFor <= 0 {
		return once()
	}
	op := func() error {
		err := once()
		if err != nil && !errors.Is(err, errNotAcquired) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = retryFor
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
