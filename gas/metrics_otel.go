package gas

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ MetricHook = (*OTelMetrics)(nil)

// OTelMetrics implements MetricHook using OpenTelemetry counters.
type OTelMetrics struct {
	meter               metric.Meter
	rmaCompleted        metric.Int64Counter
	rmaFailed           metric.Int64Counter
	flushCompleted      metric.Int64Counter
	flushFailed         metric.Int64Counter
	collectiveCompleted metric.Int64Counter
	collectiveFailed    metric.Int64Counter
}

// NewOTelMetrics constructs a MetricHook that emits OpenTelemetry
// counter measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/hpcgo/pgas-go/gas"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	rmaCompleted, err := meter.Int64Counter("pgas.rma.completed")
	if err != nil {
		return nil, err
	}
	rmaFailed, err := meter.Int64Counter("pgas.rma.failed")
	if err != nil {
		return nil, err
	}
	flushCompleted, err := meter.Int64Counter("pgas.flush.completed")
	if err != nil {
		return nil, err
	}
	flushFailed, err := meter.Int64Counter("pgas.flush.failed")
	if err != nil {
		return nil, err
	}
	collectiveCompleted, err := meter.Int64Counter("pgas.collective.completed")
	if err != nil {
		return nil, err
	}
	collectiveFailed, err := meter.Int64Counter("pgas.collective.failed")
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		meter:               meter,
		rmaCompleted:        rmaCompleted,
		rmaFailed:           rmaFailed,
		flushCompleted:      flushCompleted,
		flushFailed:         flushFailed,
		collectiveCompleted: collectiveCompleted,
		collectiveFailed:    collectiveFailed,
	}, nil
}

func otelAttrs(attrs map[string]string, extra ...attribute.KeyValue) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs)+len(extra))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	return append(kvs, extra...)
}

// RMACompleted counts a completed one-sided operation.
func (o *OTelMetrics) RMACompleted(op string, attrs map[string]string) {
	o.rmaCompleted.Add(context.Background(), 1,
		metric.WithAttributes(otelAttrs(attrs, attribute.String(labelOperation, op))...))
}

// RMAFailed counts a failed one-sided operation.
func (o *OTelMetrics) RMAFailed(op string, _ error, attrs map[string]string) {
	o.rmaFailed.Add(context.Background(), 1,
		metric.WithAttributes(otelAttrs(attrs, attribute.String(labelOperation, op))...))
}

// FlushCompleted counts a completed flush.
func (o *OTelMetrics) FlushCompleted(attrs map[string]string) {
	o.flushCompleted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// FlushFailed counts a failed flush.
func (o *OTelMetrics) FlushFailed(_ error, attrs map[string]string) {
	o.flushFailed.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// CollectiveCompleted counts a completed collective or point-to-point
// operation.
func (o *OTelMetrics) CollectiveCompleted(name string, attrs map[string]string) {
	o.collectiveCompleted.Add(context.Background(), 1,
		metric.WithAttributes(otelAttrs(attrs, attribute.String(labelName, name))...))
}

// CollectiveFailed counts a failed collective or point-to-point
// operation.
func (o *OTelMetrics) CollectiveFailed(name string, _ error, attrs map[string]string) {
	o.collectiveFailed.Add(context.Background(), 1,
		metric.WithAttributes(otelAttrs(attrs, attribute.String(labelName, name))...))
}
