// Package sysv wraps System V semaphore sets (one semaphore per set) behind a
// small create-or-open API keyed by a string name.
package sysv

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// MaxValue is SEMVMX, the largest count a System V semaphore can hold.
const MaxValue = 32767

var (
	// ErrNotSupported is returned on builds without System V semaphore support.
	ErrNotSupported = errors.New("sysv: semaphores are not supported on this platform")
	// ErrRemoved is returned when the set was deleted while in use.
	ErrRemoved = errors.New("sysv: semaphore set removed")
)

// KeyOf maps name onto a positive IPC key. IPC_PRIVATE (0) is never returned.
func KeyOf(name string) int32 {
	k := int32(xxhash.Sum64String(name) & 0x7fffffff)
	if k == 0 {
		k = 1
	}
	return k
}

// DefaultDir is where the create-or-open lock files live when no directory is configured.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "xproc-rwlock")
}

func lockPath(dir string, key int32) string {
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, strconv.FormatInt(int64(key), 16)+".lock")
}
