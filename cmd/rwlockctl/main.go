// Command rwlockctl runs reader, writer and stress processes against a named
// cross-process reader-writer lock. Start several of them with the same
// --name to watch them coordinate.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/srediag/xproc-rwlock/internal/logger"
	"github.com/srediag/xproc-rwlock/internal/sysv"
	"github.com/srediag/xproc-rwlock/pkg/metrics"
	"github.com/srediag/xproc-rwlock/pkg/rwlock"
	"github.com/srediag/xproc-rwlock/pkg/semaphore"
)

var cliLogger = logger.New("rwlockctl", os.Stderr)

const (
	backendSysV   = "sysv"
	backendMemory = "memory"
)

type options struct {
	name       string
	maxReaders int
	timeout    time.Duration
	backend    string
	lockDir    string
	adminAddr  string
	logLevel   int
}

func bindFlags(fs *pflag.FlagSet, o *options) {
	fs.StringVar(&o.name, "name", "Synchronizer", "lock name shared by every cooperating process")
	fs.IntVar(&o.maxReaders, "max-readers", rwlock.DefaultMaxReaders, "maximum concurrent readers")
	fs.DurationVar(&o.timeout, "timeout", rwlock.DefaultTimeout, "wait bound of every entry and exit, negative blocks")
	fs.StringVar(&o.backend, "backend", backendSysV, "semaphore backend: sysv or memory")
	fs.StringVar(&o.lockDir, "lock-dir", sysv.DefaultDir(), "directory of the sysv create-or-open lock files")
	fs.StringVar(&o.adminAddr, "admin-addr", "", "serve /metrics, /live and /ready on this address")
	fs.IntVar(&o.logLevel, "log-level", logger.Level(), "0 trace, 1 debug, 2 info, 3 warn, 4 error, 5 silent")
}

func (o *options) opener() (semaphore.Opener, error) {
	switch o.backend {
	case backendSysV:
		if !sysv.Supported() {
			return nil, semaphore.ErrNotSupported
		}
		return semaphore.SysV{Dir: o.lockDir}, nil
	case backendMemory:
		return semaphore.Memory{}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", o.backend)
	}
}

// lockConfig maps the flags onto a lock Config. A negative --timeout blocks.
func (o *options) lockConfig(rec metrics.Recorder) (*rwlock.Config, error) {
	opener, err := o.opener()
	if err != nil {
		return nil, err
	}
	cfg := rwlock.DefaultConfig()
	cfg.Name = o.name
	cfg.MaxReaders = o.maxReaders
	cfg.Timeout = o.timeout
	if cfg.Timeout < 0 {
		cfg.Timeout = rwlock.Infinite
	}
	cfg.Opener = opener
	if rec != nil {
		cfg.Recorder = rec
	}
	return cfg, rwlock.VerifyConfig(cfg)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newRootCommand() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "rwlockctl",
		Short:         "Drive a named cross-process reader-writer lock",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.SetLogLevel(o.logLevel)
		},
	}
	bindFlags(root.PersistentFlags(), o)
	root.AddCommand(
		newReaderCommand(o),
		newWriterCommand(o),
		newStressCommand(o),
		newRemoveCommand(o),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		cliLogger.Errorf("%v", err)
		os.Exit(1)
	}
}
