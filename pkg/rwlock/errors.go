package rwlock

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyName         = errors.New("rwlock: empty synchronization object name")
	ErrInvalidMaxReaders = errors.New("rwlock: maximum reader count must be positive")
	ErrInvalidTimeout    = errors.New("rwlock: timeout must be non-negative or Infinite")

	// ErrInvalidOperation is matched by every *StateError.
	ErrInvalidOperation = errors.New("rwlock: invalid operation")
	// ErrExitTimeout means ExitReadLock could not take the reader guard in
	// time. The read lock is still held and the exit may be retried.
	ErrExitTimeout = errors.New("rwlock: timed out exiting read lock")
	// ErrCounterCorrupted means the reader counter semaphore lost its offset unit.
	ErrCounterCorrupted = errors.New("rwlock: reader counter corrupted")
	ErrClosed           = errors.New("rwlock: lock closed")
)

// StateError reports an operation that is not allowed in the instance's current state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("rwlock: %s not allowed while %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidOperation }
