// Package shm maps small shared regions of plain int32 counters that several
// processes update with atomic operations.
package shm

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

// ErrNotSupported is returned on builds without shared file mappings.
var ErrNotSupported = errors.New("shm: shared mappings are not supported on this platform")

// slotSize is the width of one counter. Slots are 4-byte aligned because
// mappings start on a page boundary.
const slotSize = 4

// MapOptions describes a region backed by a regular file.
type MapOptions struct {
	Path string
	// Slots is the number of int32 counters in the region.
	Slots int
}

// Region is a mapped shared region. Counters read zero after the backing
// file is created.
type Region struct {
	path  string
	mem   []byte
	fd    int
	slots int
}

// Path returns the backing file.
func (r *Region) Path() string { return r.path }

// Slots returns the number of counters.
func (r *Region) Slots() int { return r.slots }

// Counter returns counter i. It panics when i is out of range.
func (r *Region) Counter(i int) *atomic.Int32 {
	if i < 0 || i >= r.slots {
		panic("shm: counter index out of range")
	}
	return (*atomic.Int32)(unsafe.Pointer(&r.mem[i*slotSize]))
}
