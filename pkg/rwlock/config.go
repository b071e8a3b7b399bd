package rwlock

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/xproc-rwlock/pkg/metrics"
	"github.com/srediag/xproc-rwlock/pkg/semaphore"
)

// Infinite disables the timeout of every wait.
const Infinite = semaphore.Infinite

const (
	DefaultMaxReaders = 5
	DefaultTimeout    = 3 * time.Second
)

// Config describes a lock. Name, MaxReaders and the semaphore backend must
// agree across every cooperating process.
type Config struct {
	// Name is the rendezvous point shared by all processes. Case-sensitive.
	Name string
	// MaxReaders bounds the number of concurrent readers.
	MaxReaders int
	// Timeout bounds every wait of an entry or exit. Infinite blocks.
	Timeout time.Duration
	// Opener creates the semaphores. Nil selects semaphore.Default().
	Opener semaphore.Opener
	// Recorder receives enter/exit events. Nil disables metrics.
	Recorder metrics.Recorder
	// Tracer wraps entry attempts in spans. Nil disables tracing.
	Tracer trace.Tracer
}

// DefaultConfig returns a Config with everything but Name filled in.
func DefaultConfig() *Config {
	return &Config{
		MaxReaders: DefaultMaxReaders,
		Timeout:    DefaultTimeout,
		Opener:     semaphore.Default(),
		Recorder:   metrics.Nop(),
		Tracer:     noop.NewTracerProvider().Tracer("xproc-rwlock"),
	}
}

// VerifyConfig checks c and returns the first problem found.
func VerifyConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("rwlock: nil config")
	}
	if c.Name == "" {
		return ErrEmptyName
	}
	if c.MaxReaders < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxReaders, c.MaxReaders)
	}
	if c.Timeout < 0 && c.Timeout != Infinite {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Timeout)
	}
	return nil
}

func (c *Config) withDefaults() *Config {
	out := *c
	def := DefaultConfig()
	if out.Opener == nil {
		out.Opener = def.Opener
	}
	if out.Recorder == nil {
		out.Recorder = def.Recorder
	}
	if out.Tracer == nil {
		out.Tracer = def.Tracer
	}
	return &out
}
