package semaphore

import (
	"errors"
	"fmt"
	"time"

	"github.com/srediag/xproc-rwlock/internal/sysv"
)

// Infinite makes Acquire block until the semaphore is signalled.
const Infinite time.Duration = -1

var (
	ErrEmptyName     = errors.New("semaphore: empty name")
	ErrInvalidBounds = errors.New("semaphore: invalid initial or maximum count")
	ErrFull          = errors.New("semaphore: release would exceed the maximum count")
	ErrClosed        = errors.New("semaphore: handle closed")
	ErrNotSupported  = sysv.ErrNotSupported
	ErrRemoved       = sysv.ErrRemoved
)

// Semaphore is a handle on a named bounded counting semaphore.
type Semaphore interface {
	// Name returns the name the semaphore was opened with.
	Name() string

	// Max returns the maximum count.
	Max() int

	// Acquire decrements the count, waiting up to timeout for it to become
	// positive. A zero timeout polls and Infinite waits forever.
	// ok is false when the timeout elapsed.
	Acquire(timeout time.Duration) (ok bool, err error)

	// Release increments the count and returns the count observed just before
	// the increment. It fails with ErrFull instead of exceeding Max.
	Release() (previous int, err error)

	// Close detaches the handle. Calling it more than once is harmless.
	Close() error
}

// Opener creates a semaphore or attaches to the one already registered under name.
// initial and max only apply when the semaphore is created.
type Opener interface {
	Open(name string, initial, max int) (Semaphore, error)
}

// Remover deletes the object registered under name.
type Remover interface {
	Remove(name string) error
}

// Default returns the SysV backend where it is supported and Memory elsewhere.
func Default() Opener {
	if sysv.Supported() {
		return SysV{}
	}
	return Memory{}
}

func checkBounds(name string, initial, max int) error {
	if name == "" {
		return ErrEmptyName
	}
	if max < 1 || initial < 0 || initial > max {
		return fmt.Errorf("%w: initial=%d max=%d", ErrInvalidBounds, initial, max)
	}
	return nil
}
