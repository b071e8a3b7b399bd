package semaphore

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/srediag/xproc-rwlock/internal/logger"
	"github.com/srediag/xproc-rwlock/internal/sysv"
)

var sysvLogger = logger.New("semaphore/sysv", nil)

// SysV opens System V kernel semaphores. Dir holds the lock files that make
// create-or-open atomic; every cooperating process must use the same Dir.
// An empty Dir selects a directory under os.TempDir().
type SysV struct {
	Dir string
}

type sysvHandle struct {
	name   string
	max    int
	set    *sysv.Set
	closed atomic.Bool
}

func (o SysV) Open(name string, initial, max int) (Semaphore, error) {
	if err := checkBounds(name, initial, max); err != nil {
		return nil, err
	}
	if max > sysv.MaxValue {
		return nil, fmt.Errorf("%w: max=%d exceeds %d", ErrInvalidBounds, max, sysv.MaxValue)
	}
	set, created, err := sysv.OpenOrCreate(o.Dir, name, initial, max)
	if err != nil {
		return nil, err
	}
	if created {
		sysvLogger.Debugf("created %q key=%#x initial=%d max=%d", name, set.Key(), initial, max)
	} else {
		sysvLogger.Tracef("attached %q key=%#x", name, set.Key())
	}
	return &sysvHandle{name: name, max: set.Max(), set: set}, nil
}

// Remove deletes the kernel object registered under name.
func (o SysV) Remove(name string) error {
	return sysv.Remove(o.Dir, name)
}

func (h *sysvHandle) Name() string { return h.name }

func (h *sysvHandle) Max() int { return h.max }

func (h *sysvHandle) Acquire(timeout time.Duration) (bool, error) {
	if h.closed.Load() {
		return false, ErrClosed
	}
	return h.set.Wait(timeout)
}

// Release checks the bound before posting. The check and the post are two
// system calls, so the previous count is exact only while releases on this
// semaphore are serialized by the caller.
func (h *sysvHandle) Release() (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	prev, err := h.set.Value()
	if err != nil {
		return 0, err
	}
	if prev >= h.max {
		return prev, ErrFull
	}
	if err := h.set.Post(); err != nil {
		return 0, err
	}
	return prev, nil
}

// Close only detaches; the kernel object stays until SysV.Remove.
func (h *sysvHandle) Close() error {
	h.closed.Store(true)
	return nil
}
