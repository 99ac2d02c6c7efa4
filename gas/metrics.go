package gas

import (
	"fmt"
	"sync/atomic"
)

// MetricHook captures runtime telemetry events. Adapters for
// Prometheus and OpenTelemetry live in this package; any other
// backend can implement the interface directly.
type MetricHook interface {
	RMACompleted(op string, attrs map[string]string)
	RMAFailed(op string, err error, attrs map[string]string)
	FlushCompleted(attrs map[string]string)
	FlushFailed(err error, attrs map[string]string)
	CollectiveCompleted(name string, attrs map[string]string)
	CollectiveFailed(name string, err error, attrs map[string]string)
}

// Stats contains counters for runtime operations.
type Stats struct {
	GetsCompleted        uint64
	PutsCompleted        uint64
	AtomicsCompleted     uint64
	RMAFailed            uint64
	FlushesCompleted     uint64
	FlushesFailed        uint64
	CollectivesCompleted uint64
	CollectivesFailed    uint64
}

type runtimeStats struct {
	getsCompleted        atomic.Uint64
	putsCompleted        atomic.Uint64
	atomicsCompleted     atomic.Uint64
	rmaFailed            atomic.Uint64
	flushesCompleted     atomic.Uint64
	flushesFailed        atomic.Uint64
	collectivesCompleted atomic.Uint64
	collectivesFailed    atomic.Uint64
}

// Stats returns a snapshot of the runtime counters.
func (rt *Runtime) Stats() Stats {
	if rt == nil {
		return Stats{}
	}
	return Stats{
		GetsCompleted:        rt.stats.getsCompleted.Load(),
		PutsCompleted:        rt.stats.putsCompleted.Load(),
		AtomicsCompleted:     rt.stats.atomicsCompleted.Load(),
		RMAFailed:            rt.stats.rmaFailed.Load(),
		FlushesCompleted:     rt.stats.flushesCompleted.Load(),
		FlushesFailed:        rt.stats.flushesFailed.Load(),
		CollectivesCompleted: rt.stats.collectivesCompleted.Load(),
		CollectivesFailed:    rt.stats.collectivesFailed.Load(),
	}
}

func (rt *Runtime) metricAttrs(fields ...logField) map[string]string {
	attrs := make(map[string]string, len(fields)+1)
	attrs["unit"] = fmt.Sprint(rt.myUnit)
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs[field.key] = fmt.Sprint(field.value)
	}
	return attrs
}

func (rt *Runtime) metricRMACompleted(op string, fields ...logField) {
	switch op {
	case "get":
		rt.stats.getsCompleted.Add(1)
	case "put":
		rt.stats.putsCompleted.Add(1)
	default:
		rt.stats.atomicsCompleted.Add(1)
	}
	if rt.metrics == nil {
		return
	}
	rt.metrics.RMACompleted(op, rt.metricAttrs(fields...))
}

func (rt *Runtime) metricRMAFailed(op string, err error, fields ...logField) {
	rt.stats.rmaFailed.Add(1)
	if rt.metrics == nil {
		return
	}
	rt.metrics.RMAFailed(op, err, rt.metricAttrs(fields...))
}

func (rt *Runtime) metricFlushCompleted(fields ...logField) {
	rt.stats.flushesCompleted.Add(1)
	if rt.metrics == nil {
		return
	}
	rt.metrics.FlushCompleted(rt.metricAttrs(fields...))
}

func (rt *Runtime) metricFlushFailed(err error, fields ...logField) {
	rt.stats.flushesFailed.Add(1)
	if rt.metrics == nil {
		return
	}
	rt.metrics.FlushFailed(err, rt.metricAttrs(fields...))
}

func (rt *Runtime) metricCollectiveCompleted(name string, fields ...logField) {
	rt.stats.collectivesCompleted.Add(1)
	if rt.metrics == nil {
		return
	}
	rt.metrics.CollectiveCompleted(name, rt.metricAttrs(fields...))
}

func (rt *Runtime) metricCollectiveFailed(name string, err error, fields ...logField) {
	rt.stats.collectivesFailed.Add(1)
	if rt.metrics == nil {
		return
	}
	rt.metrics.CollectiveFailed(name, err, rt.metricAttrs(fields...))
}
