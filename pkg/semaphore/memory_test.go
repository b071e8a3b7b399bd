package semaphore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDestroyedWithLastHandle(t *testing.T) {
	name := "memtest.lifetime"
	a, err := Memory{}.Open(name, 1, 1)
	require.NoError(t, err)
	b, err := Memory{}.Open(name, 1, 1)
	require.NoError(t, err)

	ok, _ := a.Acquire(0)
	require.True(t, ok)

	require.NoError(t, a.Close())
	assert.True(t, registry.Has(name), "b still references the object")

	require.NoError(t, b.Close())
	assert.False(t, registry.Has(name))

	c, err := Memory{}.Open(name, 1, 1)
	require.NoError(t, err)
	defer c.Close()
	ok, _ = c.Acquire(0)
	assert.True(t, ok, "a fresh object starts from its initial count")
}

func TestMemoryRemoveDetaches(t *testing.T) {
	name := "memtest.remove"
	a, err := Memory{}.Open(name, 0, 1)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, Memory{}.Remove(name))
	b, err := Memory{}.Open(name, 1, 1)
	require.NoError(t, err)
	defer b.Close()

	ok, _ := a.Acquire(0)
	assert.False(t, ok)
	ok, _ = b.Acquire(0)
	assert.True(t, ok)
}
