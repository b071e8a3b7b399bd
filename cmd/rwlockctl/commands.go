package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/srediag/xproc-rwlock/internal/worker"
	"github.com/srediag/xproc-rwlock/pkg/metrics"
	"github.com/srediag/xproc-rwlock/pkg/rwlock"
)

// session is the lock plus the admin endpoint of one loop command.
type session struct {
	lock     *rwlock.Lock
	recorder metrics.Recorder
	admin    *adminServer
}

func (o *options) openSession(ctx context.Context) (*session, error) {
	reg := newRegistry()
	rec, err := metrics.NewPrometheus(reg)
	if err != nil {
		return nil, err
	}
	cfg, err := o.lockConfig(rec)
	if err != nil {
		return nil, err
	}
	l, err := rwlock.Open(cfg)
	if err != nil {
		return nil, err
	}
	s := &session{lock: l, recorder: rec}
	if o.adminAddr != "" {
		s.admin, err = startAdmin(ctx, o.adminAddr, reg, l, o.healthDir())
		if err != nil {
			_ = l.Close()
			return nil, err
		}
	}
	return s, nil
}

// healthDir is the directory whose free space gates readiness.
func (o *options) healthDir() string {
	if o.backend == backendSysV {
		return o.lockDir
	}
	return os.TempDir()
}

func (s *session) close() error {
	if s.admin != nil {
		s.admin.shutdown()
	}
	return s.lock.Close()
}

type loopFlags struct {
	iterations int
	hold       time.Duration
	retryFor   time.Duration
}

func newLoopCommand(o *options, use, short string, defaults worker.LoopOptions,
	run func(context.Context, *rwlock.Lock, worker.LoopOptions) (worker.LoopResult, error)) *cobra.Command {
	lf := &loopFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.openSession(cmd.Context())
			if err != nil {
				return err
			}
			res, runErr := run(cmd.Context(), s.lock, worker.LoopOptions{
				Iterations: lf.iterations,
				Hold:       lf.hold,
				RetryFor:   lf.retryFor,
				Out:        cmd.OutOrStdout(),
			})
			closeErr := s.close()
			if runErr != nil {
				return runErr
			}
			cliLogger.Infof("%s on %q: %d entered, %d missed", use, o.name, res.Entered, res.Missed)
			return closeErr
		},
	}
	cmd.Flags().IntVar(&lf.iterations, "iterations", defaults.Iterations, "critical sections to attempt")
	cmd.Flags().DurationVar(&lf.hold, "hold", defaults.Hold, "time spent inside each critical section")
	cmd.Flags().DurationVar(&lf.retryFor, "retry-for", 10*time.Second, "retry a missed entry with backoff for this long, 0 disables")
	return cmd
}

func newReaderCommand(o *options) *cobra.Command {
	return newLoopCommand(o, "reader", "Enter and exit the read lock in a loop",
		worker.DefaultReaderOptions(), worker.RunReader)
}

func newWriterCommand(o *options) *cobra.Command {
	return newLoopCommand(o, "writer", "Enter and exit the write lock in a loop",
		worker.DefaultWriterOptions(), worker.RunWriter)
}

func newStressCommand(o *options) *cobra.Command {
	var (
		readers, writers, rounds int
		hold                     time.Duration
		board                    string
	)
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run many readers and writers at once and check mutual exclusion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = s.close() }()

			// workers share the session's recorder so /metrics shows them
			cfg, err := o.lockConfig(s.recorder)
			if err != nil {
				return err
			}
			report, err := worker.Stress(cmd.Context(), worker.StressConfig{
				Lock:      *cfg,
				Readers:   readers,
				Writers:   writers,
				Rounds:    rounds,
				Hold:      hold,
				BoardPath: board,
			})
			if report != nil {
				fmt.Fprintf(cmd.OutOrStdout(),
					"reads=%d (missed %d) writes=%d (missed %d) max readers=%d violations=%d elapsed=%s\n",
					report.Reads, report.ReadMisses, report.Writes, report.WriteMisses,
					report.MaxReaders, report.Violations, report.Elapsed.Round(time.Millisecond))
				if report.Violations > 0 {
					return fmt.Errorf("%d mutual exclusion violations", report.Violations)
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&readers, "readers", 8, "reader workers")
	cmd.Flags().IntVar(&writers, "writers", 2, "writer workers")
	cmd.Flags().IntVar(&rounds, "rounds", 100, "entry attempts per worker")
	cmd.Flags().DurationVar(&hold, "hold", time.Millisecond, "time spent inside each critical section")
	cmd.Flags().StringVar(&board, "board", "", "file shared by stress processes to check exclusion across them")
	return cmd
}

func newRemoveCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Delete the semaphores of --name, resetting a lock left held by a dead process",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			opener, err := o.opener()
			if err != nil {
				return err
			}
			if err := rwlock.Remove(opener, o.name); err != nil {
				return err
			}
			cliLogger.Infof("removed %q", o.name)
			return nil
		},
	}
}
