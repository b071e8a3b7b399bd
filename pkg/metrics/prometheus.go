package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rwlock"

// Prometheus exports lock activity as Prometheus collectors.
type Prometheus struct {
	enter *prometheus.CounterVec
	wait  *prometheus.HistogramVec
	held  *prometheus.GaugeVec
	exit  *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		enter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enter_total",
			Help:      "Lock entry attempts by mode and outcome.",
		}, []string{"lock", "mode", "outcome"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enter_wait_seconds",
			Help:      "Time spent inside entry attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"lock", "mode"}),
		held: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "held",
			Help:      "Locks currently held by this process.",
		}, []string{"lock", "mode"}),
		exit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exit_total",
			Help:      "Lock exits by mode and result.",
		}, []string{"lock", "mode", "result"}),
	}
	for _, c := range []prometheus.Collector{p.enter, p.wait, p.held, p.exit} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) Enter(lock string, mode Mode, outcome Outcome, wait time.Duration) {
	p.enter.WithLabelValues(lock, string(mode), string(outcome)).Inc()
	p.wait.WithLabelValues(lock, string(mode)).Observe(wait.Seconds())
	if outcome == OutcomeAcquired {
		p.held.WithLabelValues(lock, string(mode)).Inc()
	}
}

func (p *Prometheus) Exit(lock string, mode Mode, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	} else {
		p.held.WithLabelValues(lock, string(mode)).Dec()
	}
	p.exit.WithLabelValues(lock, string(mode), result).Inc()
}
