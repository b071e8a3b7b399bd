//go:build unix

package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MapRegion opens or creates the file at opts.Path, grows it to hold
// opts.Slots counters and maps it shared.
func MapRegion(opts MapOptions) (*Region, error) {
	if opts.Path == "" || opts.Slots < 1 {
		return nil, fmt.Errorf("shm: invalid options path=%q slots=%d", opts.Path, opts.Slots)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("shm: mkdir: %w", err)
	}
	fd, err := unix.Open(opts.Path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", opts.Path, err)
	}
	size := opts.Slots * slotSize
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("shm: stat %s: %w", opts.Path, err)
	}
	// only grow, so a process mapping fewer slots never truncates a peer
	if st.Size < int64(size) {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("shm: ftruncate %s: %w", opts.Path, err)
		}
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap %s: %w", opts.Path, err)
	}
	return &Region{path: opts.Path, mem: mem, fd: fd, slots: opts.Slots}, nil
}

// UnmapRegion unmaps region and closes its file. The file itself stays.
func UnmapRegion(region *Region) error {
	if region == nil || region.mem == nil {
		return nil
	}
	err := unix.Munmap(region.mem)
	region.mem = nil
	if cerr := unix.Close(region.fd); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("shm: unmap %s: %w", region.path, err)
	}
	return nil
}
