package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTel records lock activity through an OpenTelemetry meter.
type OTel struct {
	enter metric.Int64Counter
	wait  metric.Float64Histogram
	held  metric.Int64UpDownCounter
	exit  metric.Int64Counter
}

// NewOTel creates the instruments on meter.
func NewOTel(meter metric.Meter) (*OTel, error) {
	var (
		o   OTel
		err error
	)
	if o.enter, err = meter.Int64Counter("rwlock.enter",
		metric.WithDescription("Lock entry attempts by mode and outcome.")); err != nil {
		return nil, err
	}
	if o.wait, err = meter.Float64Histogram("rwlock.enter.wait",
		metric.WithDescription("Time spent inside entry attempts."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if o.held, err = meter.Int64UpDownCounter("rwlock.held",
		metric.WithDescription("Locks currently held by this process.")); err != nil {
		return nil, err
	}
	if o.exit, err = meter.Int64Counter("rwlock.exit",
		metric.WithDescription("Lock exits by mode and result.")); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *OTel) Enter(lock string, mode Mode, outcome Outcome, wait time.Duration) {
	ctx := context.Background()
	base := metric.WithAttributes(attribute.String("lock", lock), attribute.String("mode", string(mode)))
	o.enter.Add(ctx, 1, base, metric.WithAttributes(attribute.String("outcome", string(outcome))))
	o.wait.Record(ctx, wait.Seconds(), base)
	if outcome == OutcomeAcquired {
		o.held.Add(ctx, 1, base)
	}
}

func (o *OTel) Exit(lock string, mode Mode, failed bool) {
	ctx := context.Background()
	base := metric.WithAttributes(attribute.String("lock", lock), attribute.String("mode", string(mode)))
	if !failed {
		o.held.Add(ctx, -1, base)
	}
	o.exit.Add(ctx, 1, base, metric.WithAttributes(attribute.Bool("failed", failed)))
}
