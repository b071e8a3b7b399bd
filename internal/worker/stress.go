package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"

	"github.com/srediag/xproc-rwlock/internal/shm"
	"github.com/srediag/xproc-rwlock/pkg/rwlock"
)

const eventBufferSize = 1024

// StressConfig describes a stress run. Every worker opens its own Lock from
// Lock, so with the SysV backend several processes can run the same stress
// concurrently against one name.
type StressConfig struct {
	Lock    rwlock.Config
	Readers int
	Writers int
	// Rounds is the number of entry attempts per worker.
	Rounds int
	Hold   time.Duration
	// BoardPath, when set, names a file mapped shared by every stress process
	// using it, so occupancy is checked across processes instead of only
	// within this one. A process that dies inside a critical section leaves
	// its count behind; delete the file between runs.
	BoardPath string
}

// Report summarizes a stress run. Violations counts observed breaches of
// mutual exclusion and must be zero. MaxReaders and Violations cover every
// process sharing the board when one is configured.
type Report struct {
	Reads         int
	Writes        int
	ReadMisses    int
	WriteMisses   int
	MaxReaders    int
	Violations    int
	Elapsed       time.Duration
	WorkerErrors  []error
	DroppedEvents int
}

type eventKind int

const (
	eventRead eventKind = iota
	eventWrite
	eventReadMiss
	eventWriteMiss
	eventViolation
	eventDone
)

type event struct {
	worker int
	kind   eventKind
}

type occupancy struct {
	readers    *atomic.Int32
	writers    *atomic.Int32
	maxReaders *atomic.Int32
}

const (
	slotReaders = iota
	slotWriters
	slotMaxReaders
	boardSlots
)

// openOccupancy returns process-local counters, or counters on the shared
// board at path.
func openOccupancy(path string) (*occupancy, func(), error) {
	if path == "" {
		return &occupancy{new(atomic.Int32), new(atomic.Int32), new(atomic.Int32)}, func() {}, nil
	}
	region, err := shm.MapRegion(shm.MapOptions{Path: path, Slots: boardSlots})
	if err != nil {
		return nil, nil, err
	}
	occ := &occupancy{
		readers:    region.Counter(slotReaders),
		writers:    region.Counter(slotWriters),
		maxReaders: region.Counter(slotMaxReaders),
	}
	return occ, func() {
		if err := shm.UnmapRegion(region); err != nil {
			workerLogger.Warnf("%v", err)
		}
	}, nil
}

// Stress runs cfg.Readers reader workers and cfg.Writers writer workers on a
// shared pool and reports what they observed.
func Stress(ctx context.Context, cfg StressConfig) (*Report, error) {
	if cfg.Readers < 0 || cfg.Writers < 0 || cfg.Readers+cfg.Writers == 0 {
		return nil, fmt.Errorf("worker: need at least one reader or writer")
	}
	if err := rwlock.VerifyConfig(&cfg.Lock); err != nil {
		return nil, err
	}
	occ, unmap, err := openOccupancy(cfg.BoardPath)
	if err != nil {
		return nil, err
	}
	defer unmap()
	pool, err := ants.NewPool(cfg.Readers+cfg.Writers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := pool.ReleaseTimeout(time.Second); err != nil {
			workerLogger.Warnf("stress pool release: %v", err)
		}
	}()

	events := queue.NewRingBuffer(eventBufferSize)
	defer events.Dispose()

	report := &Report{}
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		collect(events, report)
	}()

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		dropped atomic.Int32
	)
	emit := func(e event) {
		if ok, err := events.Offer(e); err != nil || !ok {
			dropped.Add(1)
		}
	}
	start := time.Now()
	for i := 0; i < cfg.Readers+cfg.Writers; i++ {
		id, write := i, i >= cfg.Readers
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := stressWorker(ctx, id, write, cfg, occ, emit); err != nil {
				errMu.Lock()
				report.WorkerErrors = append(report.WorkerErrors, fmt.Errorf("worker %d: %w", id, err))
				errMu.Unlock()
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			return nil, err
		}
	}
	wg.Wait()
	report.Elapsed = time.Since(start)

	if err := events.Put(event{kind: eventDone}); err != nil {
		return nil, err
	}
	<-reported
	report.MaxReaders = int(occ.maxReaders.Load())
	report.DroppedEvents = int(dropped.Load())
	workerLogger.Infof("stress %q: %d reads, %d writes, %d violations in %s",
		cfg.Lock.Name, report.Reads, report.Writes, report.Violations, report.Elapsed)
	return report, errors.Join(report.WorkerErrors...)
}

func stressWorker(ctx context.Context, id int, write bool, cfg StressConfig, occ *occupancy, emit func(event)) error {
	lockCfg := cfg.Lock
	l, err := rwlock.Open(&lockCfg)
	if err != nil {
		return err
	}
	defer l.Close()

	for round := 0; round < cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if write {
			err = writeOnce(id, l, cfg.Hold, occ, emit)
		} else {
			err = readOnce(id, l, cfg.Hold, occ, emit)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readOnce(id int, l *rwlock.Lock, hold time.Duration, occ *occupancy, emit func(event)) error {
	ok, err := l.TryEnterReadLock()
	if err != nil {
		return err
	}
	if !ok {
		emit(event{worker: id, kind: eventReadMiss})
		return nil
	}
	n := occ.readers.Add(1)
	for {
		seen := occ.maxReaders.Load()
		if n <= seen || occ.maxReaders.CompareAndSwap(seen, n) {
			break
		}
	}
	if occ.writers.Load() != 0 {
		emit(event{worker: id, kind: eventViolation})
	}
	time.Sleep(hold)
	occ.readers.Add(-1)
	emit(event{worker: id, kind: eventRead})
	return l.ExitReadLock()
}

func writeOnce(id int, l *rwlock.Lock, hold time.Duration, occ *occupancy, emit func(event)) error {
	ok, err := l.TryEnterWriteLock()
	if err != nil {
		return err
	}
	if !ok {
		emit(event{worker: id, kind: eventWriteMiss})
		return nil
	}
	if occ.writers.Add(1) != 1 || occ.readers.Load() != 0 {
		emit(event{worker: id, kind: eventViolation})
	}
	time.Sleep(hold)
	occ.writers.Add(-1)
	emit(event{worker: id, kind: eventWrite})
	return l.ExitWriteLock()
}

// collect drains events into r until the done marker arrives.
func collect(events *queue.RingBuffer, r *Report) {
	for {
		item, err := events.Get()
		if err != nil {
			return
		}
		e := item.(event)
		switch e.kind {
		case eventRead:
			r.Reads++
		case eventWrite:
			r.Writes++
		case eventReadMiss:
			r.ReadMisses++
		case eventWriteMiss:
			r.WriteMisses++
		case eventViolation:
			r.Violations++
			workerLogger.Errorf("worker %d observed a mutual exclusion violation", e.worker)
		case eventDone:
			return
		}
	}
}
