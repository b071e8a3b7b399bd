// Package metrics records lock activity. The lock reports every entry attempt
// and every exit to a Recorder; Prometheus and OpenTelemetry implementations
// are provided.
package metrics

import "time"

// Mode is the kind of lock an operation targets.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Outcome classifies an entry attempt.
type Outcome string

const (
	OutcomeAcquired Outcome = "acquired"
	OutcomeTimeout  Outcome = "timeout"
	// OutcomeRejected is a read attempt refused because the reader capacity is exhausted.
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Recorder receives lock events. Implementations must be safe for concurrent use.
type Recorder interface {
	// Enter records one entry attempt on lock and how long it waited.
	Enter(lock string, mode Mode, outcome Outcome, wait time.Duration)
	// Exit records a release; failed reports whether the exit returned an error.
	Exit(lock string, mode Mode, failed bool)
}

type nop struct{}

func (nop) Enter(string, Mode, Outcome, time.Duration) {}
func (nop) Exit(string, Mode, bool)                    {}

// Nop returns a Recorder that drops everything.
func Nop() Recorder { return nop{} }
