//go:build !unix

package shm

func MapRegion(MapOptions) (*Region, error) { return nil, ErrNotSupported }

func UnmapRegion(*Region) error { return nil }
