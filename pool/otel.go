package pool

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// InstrumentMeter registers observable gauges mirroring Metrics on the
// given otel Meter, grounded on internal/hooks/hooks_otel.go's use of
// attribute-tagged instruments. Call once per Pool; the returned
// registration should be unregistered on Pool.Close by the caller.
func InstrumentMeter[C any](meter metric.Meter, name string, p *Pool[C]) (metric.Registration, error) {
	idle, err := meter.Int64ObservableGauge(name + ".idle")
	if err != nil {
		return nil, err
	}
	inUse, err := meter.Int64ObservableGauge(name + ".in_use")
	if err != nil {
		return nil, err
	}
	total, err := meter.Int64ObservableGauge(name + ".total")
	if err != nil {
		return nil, err
	}
	waiters, err := meter.Int64ObservableGauge(name + ".waiters")
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		m := p.Metrics()
		o.ObserveInt64(idle, int64(m.CurrentIdle))
		o.ObserveInt64(inUse, int64(m.CurrentInUse))
		o.ObserveInt64(total, int64(m.CurrentTotal))
		o.ObserveInt64(waiters, int64(m.WaitersQueued))
		return nil
	}, idle, inUse, total, waiters)
}
