//go:build linux && (amd64 || arm64)

package sysv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// from <linux/ipc.h> and <linux/sem.h>
const (
	ipcCreat  = 0o1000
	ipcExcl   = 0o2000
	ipcNowait = 0o4000
	ipcRmid   = 0
	semGetVal = 12
	semSetVal = 16
)

type sembuf struct {
	num uint16
	op  int16
	flg int16
}

// Set is an attached semaphore set holding a single semaphore.
type Set struct {
	id  int
	key int32
	max int
}

// Supported reports whether this build can use System V semaphores.
func Supported() bool { return true }

// OpenOrCreate attaches to the set registered under name, creating it with
// count initial when absent. created reports which of the two happened.
// Creation and initialisation run under an exclusive flock on a file in dir
// so a concurrent opener never sees an uninitialised count. The lock file also
// records max, which the kernel does not keep; Max returns the recorded value.
func OpenOrCreate(dir, name string, initial, max int) (set *Set, created bool, err error) {
	key := KeyOf(name)
	path := lockPath(dir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("sysv: lock dir: %w", err)
	}
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o666)
	if err != nil {
		return nil, false, fmt.Errorf("sysv: open %s: %w", path, err)
	}
	defer func() { _ = unix.Close(fd) }()
	if err := flock(fd, unix.LOCK_EX); err != nil {
		return nil, false, fmt.Errorf("sysv: flock %s: %w", path, err)
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()

	id, err := semget(key, ipcCreat|ipcExcl|0o666)
	if err == nil {
		if _, err := semctl(id, semSetVal, initial); err != nil {
			_, _ = semctl(id, ipcRmid, 0)
			return nil, false, fmt.Errorf("sysv: init %q: %w", name, err)
		}
		if err := writeMax(fd, max); err != nil {
			_, _ = semctl(id, ipcRmid, 0)
			return nil, false, fmt.Errorf("sysv: record max %q: %w", name, err)
		}
		return &Set{id: id, key: key, max: max}, true, nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return nil, false, fmt.Errorf("sysv: create %q: %w", name, err)
	}
	id, err = semget(key, 0)
	if err != nil {
		return nil, false, fmt.Errorf("sysv: open %q: %w", name, err)
	}
	if recorded, ok := readMax(fd); ok {
		max = recorded
	}
	return &Set{id: id, key: key, max: max}, false, nil
}

func writeMax(fd, max int) error {
	if err := unix.Ftruncate(fd, 0); err != nil {
		return err
	}
	_, err := unix.Pwrite(fd, []byte(strconv.Itoa(max)), 0)
	return err
}

func readMax(fd int) (int, bool) {
	var buf [16]byte
	n, err := unix.Pread(fd, buf[:], 0)
	if err != nil || n == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(string(buf[:n]))
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

// Remove deletes the set registered under name and its lock file.
// A missing set is not an error.
func Remove(dir, name string) error {
	key := KeyOf(name)
	id, err := semget(key, 0)
	switch {
	case errors.Is(err, unix.ENOENT):
	case err != nil:
		return fmt.Errorf("sysv: open %q: %w", name, err)
	default:
		if _, err := semctl(id, ipcRmid, 0); err != nil && !errors.Is(err, unix.EIDRM) && !errors.Is(err, unix.EINVAL) {
			return fmt.Errorf("sysv: remove %q: %w", name, err)
		}
	}
	if err := os.Remove(lockPath(dir, key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Key returns the IPC key of the set.
func (s *Set) Key() int32 { return s.key }

// Max returns the maximum count recorded when the set was created.
func (s *Set) Max() int { return s.max }

// Wait decrements the semaphore. A zero timeout polls, a negative one blocks
// until the count is positive. ok is false when the timeout elapsed.
func (s *Set) Wait(timeout time.Duration) (ok bool, err error) {
	ops := []sembuf{{num: 0, op: -1}}
	if timeout == 0 {
		ops[0].flg = ipcNowait
		return done(semtimedop(s.id, ops, nil))
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		var ts *unix.Timespec
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				ops[0].flg = ipcNowait
			} else {
				t := unix.NsecToTimespec(remaining.Nanoseconds())
				ts = &t
			}
		}
		err := semtimedop(s.id, ops, ts)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return done(err)
	}
}

// Post increments the semaphore.
func (s *Set) Post() error {
	ops := []sembuf{{num: 0, op: 1}}
	for {
		err := semtimedop(s.id, ops, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if isRemoved(err) {
			return ErrRemoved
		}
		if err != nil {
			return fmt.Errorf("sysv: post: %w", err)
		}
		return nil
	}
}

// Value returns the current count.
func (s *Set) Value() (int, error) {
	v, err := semctl(s.id, semGetVal, 0)
	if isRemoved(err) {
		return 0, ErrRemoved
	}
	if err != nil {
		return 0, fmt.Errorf("sysv: getval: %w", err)
	}
	return v, nil
}

func done(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EAGAIN):
		return false, nil
	case isRemoved(err):
		return false, ErrRemoved
	default:
		return false, fmt.Errorf("sysv: wait: %w", err)
	}
}

func isRemoved(err error) bool {
	return errors.Is(err, unix.EIDRM) || errors.Is(err, unix.EINVAL)
}

func flock(fd, how int) error {
	for {
		err := unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func semget(key int32, flags int) (int, error) {
	id, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), 1, uintptr(flags))
	if errno != 0 {
		return -1, errno
	}
	return int(id), nil
}

func semctl(id, cmd, arg int) (int, error) {
	r, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, uintptr(cmd), uintptr(arg), 0, 0)
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}

func semtimedop(id int, ops []sembuf, ts *unix.Timespec) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMTIMEDOP, uintptr(id),
		uintptr(unsafe.Pointer(&ops[0])), uintptr(len(ops)),
		uintptr(unsafe.Pointer(ts)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
