package rwlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/xproc-rwlock/internal/logger"
	"github.com/srediag/xproc-rwlock/pkg/metrics"
	"github.com/srediag/xproc-rwlock/pkg/semaphore"
)

var lockLogger = logger.New("rwlock", nil)

// Lock is one process's handle on a named cross-process reader-writer lock.
//
// A Lock tracks what it holds itself: every successful entry must be matched
// by exactly one exit on the same Lock. Entries are not reentrant and a read
// lock cannot be upgraded. Methods are serialized per instance, so goroutines
// that need to hold the lock at the same time should each open their own Lock.
type Lock struct {
	name     string
	timeout  time.Duration
	incoming semaphore.Semaphore
	reader   semaphore.Semaphore
	writer   semaphore.Semaphore
	counter  *Counter
	recorder metrics.Recorder
	tracer   trace.Tracer

	mu     sync.Mutex
	state  State
	closed bool
}

// New opens the lock registered under name with the default backend.
func New(name string, maxReaders int, timeout time.Duration) (*Lock, error) {
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.MaxReaders = maxReaders
	cfg.Timeout = timeout
	return Open(cfg)
}

// Open creates the lock's semaphores, or attaches to them when another
// process created them first.
func Open(cfg *Config) (*Lock, error) {
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	counter, err := NewCounter(cfg.Opener, cfg.Name+".Counter", cfg.MaxReaders)
	if err != nil {
		return nil, err
	}
	l := &Lock{
		name:     cfg.Name,
		timeout:  cfg.Timeout,
		counter:  counter,
		recorder: cfg.Recorder,
		tracer:   cfg.Tracer,
	}
	for _, slot := range []struct {
		sem    *semaphore.Semaphore
		suffix string
	}{
		{&l.incoming, ".Incoming"},
		{&l.reader, ".Reader"},
		{&l.writer, ".Writer"},
	} {
		sem, err := cfg.Opener.Open(cfg.Name+slot.suffix, 1, 1)
		if err != nil {
			_ = l.closeHandles()
			return nil, fmt.Errorf("rwlock: open %s%s: %w", cfg.Name, slot.suffix, err)
		}
		*slot.sem = sem
	}
	lockLogger.Debugf("opened %q max readers=%d timeout=%s", l.name, counter.MaximumCount()-counterOffset, l.timeout)
	return l, nil
}

// Remove deletes every semaphore of the lock called name from the backend.
// Processes that still have the lock open keep working on SysV until they
// touch a removed object, which then fails with semaphore.ErrRemoved.
func Remove(opener semaphore.Opener, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if opener == nil {
		opener = semaphore.Default()
	}
	r, ok := opener.(semaphore.Remover)
	if !ok {
		return fmt.Errorf("rwlock: %T cannot remove semaphores", opener)
	}
	var errs []error
	for _, n := range semaphoreNames(name) {
		if err := r.Remove(n); err != nil {
			errs = append(errs, fmt.Errorf("rwlock: remove %s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

func semaphoreNames(name string) []string {
	return []string{
		name + ".Incoming",
		name + ".Reader",
		name + ".Writer",
		name + ".Counter",
		name + ".Counter" + counterGuardSuffix,
	}
}

// Name returns the rendezvous name.
func (l *Lock) Name() string { return l.name }

// Timeout returns the configured wait bound.
func (l *Lock) Timeout() time.Duration { return l.timeout }

// State returns what this instance currently holds.
func (l *Lock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Readers returns the number of readers active across all processes.
func (l *Lock) Readers() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	return l.counter.Current()
}

// TryEnterReadLock enters the read lock, waiting at most the configured timeout.
func (l *Lock) TryEnterReadLock() (bool, error) {
	return l.TryEnterReadLockTimeout(l.timeout)
}

// TryEnterReadLockTimeout enters the read lock. It returns false without an
// error when a wait timed out or when the reader capacity is exhausted; in
// both cases nothing is held and ExitReadLock must not be called.
func (l *Lock) TryEnterReadLockTimeout(timeout time.Duration) (bool, error) {
	return l.enter(opEnterRead, metrics.ModeRead, timeout, l.enterRead)
}

// ExitReadLock leaves a read lock entered through this instance. The last
// reader out hands the writer token back.
func (l *Lock) ExitReadLock() error {
	return l.exit(opExitRead, metrics.ModeRead, l.exitRead)
}

// TryEnterWriteLock enters the write lock, waiting at most the configured timeout.
func (l *Lock) TryEnterWriteLock() (bool, error) {
	return l.TryEnterWriteLockTimeout(l.timeout)
}

// TryEnterWriteLockTimeout enters the write lock. It returns false without an
// error when a wait timed out.
func (l *Lock) TryEnterWriteLockTimeout(timeout time.Duration) (bool, error) {
	return l.enter(opEnterWrite, metrics.ModeWrite, timeout, l.enterWrite)
}

// ExitWriteLock leaves a write lock entered through this instance.
func (l *Lock) ExitWriteLock() error {
	return l.exit(opExitWrite, metrics.ModeWrite, l.exitWrite)
}

// Close exits whatever this instance still holds and detaches every
// semaphore. Closing twice is a no-op.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	var exitErr error
	switch l.state {
	case StateReadHeld:
		lockLogger.Warnf("closing %q with a read lock held, exiting it", l.name)
		exitErr = l.exitRead()
	case StateWriteHeld:
		lockLogger.Warnf("closing %q with a write lock held, exiting it", l.name)
		exitErr = l.exitWrite()
	}
	if exitErr != nil {
		lockLogger.Errorf("exit on close of %q: %v", l.name, exitErr)
	}
	l.state = StateIdle
	l.closed = true
	return errors.Join(exitErr, l.closeHandles())
}

func (l *Lock) enter(op string, mode metrics.Mode, timeout time.Duration, protocol func(time.Duration) (metrics.Outcome, error)) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}
	next, err := transition(l.state, op)
	if err != nil {
		return false, err
	}

	_, span := l.tracer.Start(context.Background(), "rwlock."+op, trace.WithAttributes(
		attribute.String("rwlock.name", l.name),
		attribute.Int64("rwlock.timeout_ms", timeout.Milliseconds()),
	))
	defer span.End()

	start := time.Now()
	outcome, err := protocol(timeout)
	l.recorder.Enter(l.name, mode, outcome, time.Since(start))
	span.SetAttributes(attribute.String("rwlock.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if outcome != metrics.OutcomeAcquired {
		lockLogger.Tracef("%s on %q: %s", op, l.name, outcome)
		return false, nil
	}
	l.state = next
	return true, nil
}

func (l *Lock) exit(op string, mode metrics.Mode, protocol func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	next, err := transition(l.state, op)
	if err != nil {
		return err
	}
	err = protocol()
	l.recorder.Exit(l.name, mode, err != nil)
	if err != nil {
		return err
	}
	l.state = next
	return nil
}

func (l *Lock) enterRead(timeout time.Duration) (metrics.Outcome, error) {
	if outcome, err := wait(l.incoming, timeout); outcome != metrics.OutcomeAcquired {
		return outcome, err
	}
	if outcome, err := wait(l.reader, timeout); outcome != metrics.OutcomeAcquired {
		l.release(l.incoming)
		return outcome, err
	}

	count, err := l.counter.Increase()
	if err != nil {
		l.release(l.reader)
		l.release(l.incoming)
		return metrics.OutcomeFailed, err
	}
	if count == 1 {
		// first reader in takes the writer token for all readers
		if outcome, err := wait(l.writer, timeout); outcome != metrics.OutcomeAcquired {
			if _, derr := l.counter.Decrease(); derr != nil {
				err = errors.Join(err, derr)
				outcome = metrics.OutcomeFailed
			}
			l.release(l.reader)
			l.release(l.incoming)
			lockLogger.Debugf("%q: first reader gave up waiting for writer, rolled back", l.name)
			return outcome, err
		}
	}
	l.release(l.reader)
	l.release(l.incoming)

	if count == l.counter.MaximumCount() {
		return metrics.OutcomeRejected, nil
	}
	return metrics.OutcomeAcquired, nil
}

func (l *Lock) exitRead() error {
	ok, err := l.reader.Acquire(l.timeout)
	if err != nil {
		return fmt.Errorf("rwlock: exit read %s: %w", l.name, err)
	}
	if !ok {
		return ErrExitTimeout
	}
	count, err := l.counter.Decrease()
	if err != nil {
		l.release(l.reader)
		return err
	}
	if count == 0 {
		l.release(l.writer)
	}
	l.release(l.reader)
	return nil
}

func (l *Lock) enterWrite(timeout time.Duration) (metrics.Outcome, error) {
	if outcome, err := wait(l.incoming, timeout); outcome != metrics.OutcomeAcquired {
		return outcome, err
	}
	if outcome, err := wait(l.writer, timeout); outcome != metrics.OutcomeAcquired {
		l.release(l.incoming)
		return outcome, err
	}
	return metrics.OutcomeAcquired, nil
}

func (l *Lock) exitWrite() error {
	l.release(l.writer)
	l.release(l.incoming)
	return nil
}

// release posts sem. A failure means the object was removed underneath us
// or the protocol is broken; neither can be repaired here.
func (l *Lock) release(sem semaphore.Semaphore) {
	if _, err := sem.Release(); err != nil {
		lockLogger.Errorf("release %s: %v", sem.Name(), err)
	}
}

func (l *Lock) closeHandles() error {
	var errs []error
	for _, sem := range []semaphore.Semaphore{l.incoming, l.reader, l.writer} {
		if sem != nil {
			errs = append(errs, sem.Close())
		}
	}
	if l.counter != nil {
		errs = append(errs, l.counter.Close())
	}
	return errors.Join(errs...)
}

func wait(sem semaphore.Semaphore, timeout time.Duration) (metrics.Outcome, error) {
	ok, err := sem.Acquire(timeout)
	switch {
	case err != nil:
		return metrics.OutcomeFailed, fmt.Errorf("rwlock: acquire %s: %w", sem.Name(), err)
	case !ok:
		return metrics.OutcomeTimeout, nil
	default:
		return metrics.OutcomeAcquired, nil
	}
}
