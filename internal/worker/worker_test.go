package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/xproc-rwlock/internal/shm"
	"github.com/srediag/xproc-rwlock/pkg/rwlock"
	"github.com/srediag/xproc-rwlock/pkg/semaphore"
)

var nameSeq atomic.Int64

func memoryConfig(tag string, maxReaders int, timeout time.Duration) *rwlock.Config {
	cfg := rwlock.DefaultConfig()
	cfg.Name = fmt.Sprintf("workertest.%d.%d.%s", os.Getpid(), nameSeq.Add(1), tag)
	cfg.MaxReaders = maxReaders
	cfg.Timeout = timeout
	cfg.Opener = semaphore.Memory{}
	return cfg
}

func openLock(t *testing.T, cfg *rwlock.Config) *rwlock.Lock {
	l, err := rwlock.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRunReaderPrintsEveryCriticalSection(t *testing.T) {
	l := openLock(t, memoryConfig("reader", 5, time.Second))
	var out bytes.Buffer
	opts := DefaultReaderOptions()
	opts.Out = &out

	res, err := RunReader(context.Background(), l, opts)
	require.NoError(t, err)
	assert.Equal(t, LoopResult{Entered: 30}, res)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 30)
	assert.Equal(t, "Read 0 Critical Section", lines[0])
	assert.Equal(t, "Read 29 Critical Section", lines[29])
	assert.Equal(t, rwlock.StateIdle, l.State())
}

func TestRunWriterCountsMisses(t *testing.T) {
	cfg := memoryConfig("writer", 5, 0)
	holder := openLock(t, cfg)
	l := openLock(t, cfg)

	ok, err := holder.TryEnterWriteLock()
	require.NoError(t, err)
	require.True(t, ok)

	var out bytes.Buffer
	res, err := RunWriter(context.Background(), l, LoopOptions{Iterations: 3, Out: &out})
	require.NoError(t, err)
	assert.Equal(t, LoopResult{Missed: 3}, res)
	assert.Equal(t, 0, out.Len())

	require.NoError(t, holder.ExitWriteLock())
	res, err = RunWriter(context.Background(), l, LoopOptions{Iterations: 2, Out: &out})
	require.NoError(t, err)
	assert.Equal(t, LoopResult{Entered: 2}, res)
	assert.Contains(t, out.String(), "Write 1 Critical Section")
}

func TestRetryWaitsOutHolder(t *testing.T) {
	cfg := memoryConfig("retry", 5, 0)
	holder := openLock(t, cfg)
	l := openLock(t, cfg)

	ok, err := holder.TryEnterWriteLock()
	require.NoError(t, err)
	require.True(t, ok)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = holder.ExitWriteLock()
	}()

	var out bytes.Buffer
	res, err := RunReader(context.Background(), l, LoopOptions{Iterations: 1, RetryFor: 2 * time.Second, Out: &out})
	require.NoError(t, err)
	assert.Equal(t, LoopResult{Entered: 1}, res)
}

func TestRunStopsOnCancel(t *testing.T) {
	l := openLock(t, memoryConfig("cancel", 5, time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := RunReader(ctx, l, LoopOptions{Iterations: 5, Out: &bytes.Buffer{}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, LoopResult{}, res)
}

func TestRunReturnsMisuse(t *testing.T) {
	l := openLock(t, memoryConfig("misuse", 5, time.Second))
	ok, err := l.TryEnterReadLock()
	require.NoError(t, err)
	require.True(t, ok)

	_, err = RunWriter(context.Background(), l, LoopOptions{Iterations: 1, RetryFor: time.Second, Out: &bytes.Buffer{}})
	assert.ErrorIs(t, err, rwlock.ErrInvalidOperation)
}

func TestStress(t *testing.T) {
	cfg := memoryConfig("stress", 3, 2*time.Second)
	report, err := Stress(context.Background(), StressConfig{
		Lock:    *cfg,
		Readers: 4,
		Writers: 2,
		Rounds:  20,
		Hold:    200 * time.Microsecond,
	})
	require.NoError(t, err)
	assert.Zero(t, report.Violations)
	assert.Zero(t, report.DroppedEvents)
	assert.Equal(t, 80, report.Reads+report.ReadMisses)
	assert.Equal(t, 40, report.Writes+report.WriteMisses)
	assert.LessOrEqual(t, report.MaxReaders, 3)
	assert.Positive(t, report.Writes)
}

func TestStressOnSharedBoard(t *testing.T) {
	board := filepath.Join(t.TempDir(), "stress.board")
	cfg := memoryConfig("board", 2, 2*time.Second)
	run := StressConfig{Lock: *cfg, Readers: 2, Writers: 1, Rounds: 10, BoardPath: board}

	report, err := Stress(context.Background(), run)
	if errors.Is(err, shm.ErrNotSupported) {
		t.Skip(err)
	}
	require.NoError(t, err)
	assert.Zero(t, report.Violations)

	// every critical section left the board balanced
	region, err := shm.MapRegion(shm.MapOptions{Path: board, Slots: 3})
	require.NoError(t, err)
	defer shm.UnmapRegion(region)
	assert.Equal(t, int32(0), region.Counter(0).Load())
	assert.Equal(t, int32(0), region.Counter(1).Load())
	assert.LessOrEqual(t, region.Counter(2).Load(), int32(2))
}

func TestStressRejectsEmptyRun(t *testing.T) {
	cfg := memoryConfig("empty", 3, time.Second)
	_, err := Stress(context.Background(), StressConfig{Lock: *cfg})
	assert.Error(t, err)

	cfg.Name = ""
	_, err = Stress(context.Background(), StressConfig{Lock: *cfg, Readers: 1})
	assert.ErrorIs(t, err, rwlock.ErrEmptyName)
}
