package rwlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/xproc-rwlock/pkg/semaphore"
)

func newTestCounter(t *testing.T, opener semaphore.Opener, maxReaders int) *Counter {
	name := uniqueName("counter")
	c, err := NewCounter(opener, name, maxReaders)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		if r, ok := opener.(semaphore.Remover); ok {
			_ = r.Remove(name)
			_ = r.Remove(name + ".Incoming")
		}
	})
	return c
}

func TestNewCounterArguments(t *testing.T) {
	_, err := NewCounter(semaphore.Memory{}, "", 1)
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = NewCounter(semaphore.Memory{}, uniqueName("bad"), 0)
	assert.ErrorIs(t, err, ErrInvalidMaxReaders)
}

func testCounterSequence(t *testing.T, opener semaphore.Opener) {
	c := newTestCounter(t, opener, 3)
	assert.Equal(t, 4, c.MaximumCount())

	cur, err := c.Current()
	require.NoError(t, err)
	assert.Equal(t, 0, cur)

	for want := 1; want <= 3; want++ {
		n, err := c.Increase()
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	for want := 2; want >= 0; want-- {
		n, err := c.Decrease()
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	cur, err = c.Current()
	require.NoError(t, err)
	assert.Equal(t, 0, cur)
}

func TestCounterSequence(t *testing.T) {
	t.Run("memory", func(t *testing.T) { testCounterSequence(t, semaphore.Memory{}) })
	t.Run("sysv", func(t *testing.T) { testCounterSequence(t, sysvOpener(t)) })
}

func TestCounterSaturation(t *testing.T) {
	c := newTestCounter(t, semaphore.Memory{}, 2)

	for want := 1; want <= 2; want++ {
		n, err := c.Increase()
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	n, err := c.Increase()
	require.NoError(t, err)
	assert.Equal(t, c.MaximumCount(), n, "saturated increase reports the maximum")

	cur, err := c.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, cur, "saturated increase leaves the semaphore alone")
}

func TestCounterDecreaseAtZero(t *testing.T) {
	c := newTestCounter(t, semaphore.Memory{}, 2)

	n, err := c.Decrease()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// the offset unit survived, so counting still works
	n, err = c.Increase()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCounterSharedAcrossHandles(t *testing.T) {
	name := uniqueName("shared")
	a, err := NewCounter(semaphore.Memory{}, name, 10)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewCounter(semaphore.Memory{}, name, 10)
	require.NoError(t, err)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		c := a
		if i%2 == 1 {
			c = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Increase()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cur, err := b.Current()
	require.NoError(t, err)
	assert.Equal(t, 10, cur)
}

func TestCounterCloseIdempotent(t *testing.T) {
	c := newTestCounter(t, semaphore.Memory{}, 1)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	_, err := c.Increase()
	assert.ErrorIs(t, err, semaphore.ErrClosed)
}
