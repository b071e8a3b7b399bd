//go:build !(linux && (amd64 || arm64))

package sysv

import "time"

// Set is unavailable on this platform; every method fails with ErrNotSupported.
type Set struct{}

func Supported() bool { return false }

func OpenOrCreate(dir, name string, initial, max int) (*Set, bool, error) {
	return nil, false, ErrNotSupported
}

func Remove(dir, name string) error {
	return ErrNotSupported
}

func (s *Set) Key() int32 { return 0 }

func (s *Set) Max() int { return 0 }

func (s *Set) Wait(timeout time.Duration) (bool, error) {
	return false, ErrNotSupported
}

func (s *Set) Post() error {
	return ErrNotSupported
}

func (s *Set) Value() (int, error) {
	return 0, ErrNotSupported
}
