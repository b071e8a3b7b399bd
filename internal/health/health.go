// Package health contains the liveness and readiness checks served by the
// demo admin endpoint.
package health

import (
	"fmt"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/srediag/xproc-rwlock/pkg/rwlock"
)

const (
	maxGoroutines = 10000
	checkTimeout  = 2 * time.Second
	// lock files are tiny; this only catches a full filesystem
	minFreeBytes = 1 << 20
)

// NewHandler returns /live and /ready endpoints for l. Check results are
// exported to reg. lockDir is where the semaphore backend keeps its files.
func NewHandler(reg prometheus.Registerer, l *rwlock.Lock, lockDir string) healthcheck.Handler {
	h := healthcheck.NewMetricsHandler(reg, "rwlock")
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	h.AddReadinessCheck("lock-dir-space", DiskSpaceCheck(lockDir, minFreeBytes))
	h.AddReadinessCheck("lock-counter", healthcheck.Timeout(LockCheck(l), checkTimeout))
	return h
}

// DiskSpaceCheck fails when the filesystem holding path has less than minFree bytes available.
func DiskSpaceCheck(path string, minFree uint64) healthcheck.Check {
	return func() error {
		usage, err := disk.Usage(path)
		if err != nil {
			return fmt.Errorf("disk usage of %s: %w", path, err)
		}
		if usage.Free < minFree {
			return fmt.Errorf("%s: %d bytes free, need %d", path, usage.Free, minFree)
		}
		return nil
	}
}

// LockCheck fails when the lock's reader counter cannot be read.
func LockCheck(l *rwlock.Lock) healthcheck.Check {
	return func() error {
		_, err := l.Readers()
		return err
	}
}
