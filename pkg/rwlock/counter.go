package rwlock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/srediag/xproc-rwlock/internal/logger"
	"github.com/srediag/xproc-rwlock/pkg/semaphore"
)

// counterOffset keeps the bounded semaphore above zero so its value can be
// peeked with a poll-then-release pair even when no reader is active.
const counterOffset = 1

const counterGuardSuffix = ".Incoming"

var counterLogger = logger.New("rwlock/counter", nil)

// Counter is an integer shared across processes: the count of a bounded
// semaphore, minus counterOffset. Updates are serialized by a one-slot
// semaphore named <name>.Incoming.
type Counter struct {
	name    string
	value   semaphore.Semaphore
	guard   semaphore.Semaphore
	maximum int

	closeOnce sync.Once
	closeErr  error
}

// NewCounter opens the counter registered under name, creating it at zero.
// It can record up to maxReaders.
func NewCounter(opener semaphore.Opener, name string, maxReaders int) (*Counter, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if maxReaders < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxReaders, maxReaders)
	}
	maximum := maxReaders + counterOffset
	value, err := opener.Open(name, counterOffset, maximum)
	if err != nil {
		return nil, fmt.Errorf("rwlock: open %s: %w", name, err)
	}
	guard, err := opener.Open(name+counterGuardSuffix, 1, 1)
	if err != nil {
		_ = value.Close()
		return nil, fmt.Errorf("rwlock: open %s.Incoming: %w", name, err)
	}
	return &Counter{
		name:    name,
		value:   value,
		guard:   guard,
		maximum: value.Max(),
	}, nil
}

// MaximumCount is the capacity of the backing semaphore, maxReaders + 1.
// Increase returns it when the counter is saturated.
func (c *Counter) MaximumCount() int { return c.maximum }

// Increase adds one reader and returns the new count. When maxReaders are
// already recorded the semaphore is left alone and MaximumCount is returned.
func (c *Counter) Increase() (int, error) {
	if err := c.lock(); err != nil {
		return 0, err
	}
	defer c.unlock()

	current, err := c.peek()
	if err != nil {
		return 0, err
	}
	if current == c.maximum-counterOffset {
		return current + 1, nil
	}
	// the count before the release is the old reader count plus the offset
	// unit, which is the new reader count
	n, err := c.value.Release()
	if err != nil {
		return 0, fmt.Errorf("rwlock: increase %s: %w", c.name, err)
	}
	return n, nil
}

// Decrease removes one reader and returns the new count. At zero it changes
// nothing and returns zero, mirroring the saturation guard of Increase.
func (c *Counter) Decrease() (int, error) {
	if err := c.lock(); err != nil {
		return 0, err
	}
	defer c.unlock()

	current, err := c.peek()
	if err != nil {
		return 0, err
	}
	if current == 0 {
		counterLogger.Warnf("decrease of %s below zero ignored", c.name)
		return 0, nil
	}
	ok, err := c.value.Acquire(0)
	if err != nil {
		return 0, fmt.Errorf("rwlock: decrease %s: %w", c.name, err)
	}
	if !ok {
		return 0, ErrCounterCorrupted
	}
	return current - 1, nil
}

// Current returns the count without changing it.
func (c *Counter) Current() (int, error) {
	if err := c.lock(); err != nil {
		return 0, err
	}
	defer c.unlock()
	return c.peek()
}

// Close detaches both semaphores.
func (c *Counter) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(c.value.Close(), c.guard.Close())
	})
	return c.closeErr
}

// peek reads the reader count; the caller holds the guard.
func (c *Counter) peek() (int, error) {
	ok, err := c.value.Acquire(0)
	if err != nil {
		return 0, fmt.Errorf("rwlock: peek %s: %w", c.name, err)
	}
	if !ok {
		return 0, ErrCounterCorrupted
	}
	n, err := c.value.Release()
	if err != nil {
		return 0, fmt.Errorf("rwlock: peek %s: %w", c.name, err)
	}
	return n, nil
}

func (c *Counter) lock() error {
	ok, err := c.guard.Acquire(semaphore.Infinite)
	if err != nil {
		return fmt.Errorf("rwlock: lock %s.Incoming: %w", c.name, err)
	}
	if !ok {
		return fmt.Errorf("rwlock: lock %s.Incoming: not acquired", c.name)
	}
	return nil
}

func (c *Counter) unlock() {
	if _, err := c.guard.Release(); err != nil {
		counterLogger.Errorf("unlock %s.Incoming: %v", c.name, err)
	}
}
