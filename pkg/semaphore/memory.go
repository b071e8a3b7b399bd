package semaphore

import (
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/xproc-rwlock/internal/logger"
)

var (
	registry  = cmap.New[*memObject]()
	memLogger = logger.New("semaphore/memory", nil)
)

// Memory opens semaphores from a registry shared by the whole process.
type Memory struct{}

type memObject struct {
	name  string
	slots chan struct{}
	// serializes releases so the previous count returned is exact
	mu   sync.Mutex
	refs int
}

type memHandle struct {
	obj    *memObject
	closed atomic.Bool
}

func (Memory) Open(name string, initial, max int) (Semaphore, error) {
	if err := checkBounds(name, initial, max); err != nil {
		return nil, err
	}
	fresh := &memObject{name: name, slots: make(chan struct{}, max)}
	for i := 0; i < initial; i++ {
		fresh.slots <- struct{}{}
	}
	obj := registry.Upsert(name, fresh, func(exist bool, inMap, newValue *memObject) *memObject {
		if exist && inMap != nil {
			inMap.refs++
			return inMap
		}
		newValue.refs = 1
		return newValue
	})
	if obj == fresh {
		memLogger.Debugf("created %q initial=%d max=%d", name, initial, max)
	}
	return &memHandle{obj: obj}, nil
}

// Remove drops name from the registry. Handles already open keep working on
// the detached object; the next Open creates a new one.
func (Memory) Remove(name string) error {
	registry.Remove(name)
	return nil
}

func (h *memHandle) Name() string { return h.obj.name }

func (h *memHandle) Max() int { return cap(h.obj.slots) }

func (h *memHandle) Acquire(timeout time.Duration) (bool, error) {
	if h.closed.Load() {
		return false, ErrClosed
	}
	slots := h.obj.slots
	switch {
	case timeout == 0:
		select {
		case <-slots:
			return true, nil
		default:
			return false, nil
		}
	case timeout < 0:
		<-slots
		return true, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-slots:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

func (h *memHandle) Release() (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	o := h.obj
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := len(o.slots)
	if prev >= cap(o.slots) {
		return prev, ErrFull
	}
	o.slots <- struct{}{}
	return prev, nil
}

func (h *memHandle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	obj := h.obj
	removed := registry.RemoveCb(obj.name, func(_ string, v *memObject, exists bool) bool {
		if !exists || v != obj {
			return false
		}
		v.refs--
		return v.refs == 0
	})
	if removed {
		memLogger.Debugf("destroyed %q", obj.name)
	}
	return nil
}
