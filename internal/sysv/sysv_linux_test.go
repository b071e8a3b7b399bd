//go:build linux && (amd64 || arm64)

package sysv

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testName(t *testing.T) string {
	return fmt.Sprintf("sysv-test.%s.%d.%d", t.Name(), os.Getpid(), time.Now().UnixNano())
}

func openSet(t *testing.T, initial int) (*Set, string, string) {
	dir := t.TempDir()
	name := testName(t)
	set, created, err := OpenOrCreate(dir, name, initial, 5)
	if err != nil {
		t.Skipf("sysv semaphores unavailable: %v", err)
	}
	require.True(t, created)
	t.Cleanup(func() { _ = Remove(dir, name) })
	return set, dir, name
}

func TestKeyOf(t *testing.T) {
	assert.Equal(t, KeyOf("a"), KeyOf("a"))
	assert.NotEqual(t, KeyOf("a.Reader"), KeyOf("a.Writer"))
	assert.Greater(t, KeyOf(""), int32(0))
}

func TestOpenOrCreate_Attach(t *testing.T) {
	set, dir, name := openSet(t, 2)

	other, created, err := OpenOrCreate(dir, name, 0, 9)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, set.Key(), other.Key())
	assert.Equal(t, 5, other.Max(), "max recorded by the creator wins")

	v, err := other.Value()
	require.NoError(t, err)
	assert.Equal(t, 2, v, "initial count of an existing set must not be reset")
}

func TestWaitPost(t *testing.T) {
	set, _, _ := openSet(t, 1)

	ok, err := set.Wait(0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = set.Wait(0)
	require.NoError(t, err)
	assert.False(t, ok)

	start := time.Now()
	ok, err = set.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	require.NoError(t, set.Post())
	v, err := set.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestWaitInfiniteWakesOnPost(t *testing.T) {
	set, _, _ := openSet(t, 0)

	got := make(chan bool, 1)
	go func() {
		ok, _ := set.Wait(-1)
		got <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, set.Post())

	select {
	case ok := <-got:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by post")
	}
}

func TestRemove(t *testing.T) {
	set, dir, name := openSet(t, 1)

	require.NoError(t, Remove(dir, name))
	_, err := set.Value()
	assert.ErrorIs(t, err, ErrRemoved)
	_, err = set.Wait(0)
	assert.ErrorIs(t, err, ErrRemoved)

	assert.NoError(t, Remove(dir, name), "removing twice is a no-op")
}
