package gas

import "github.com/prometheus/client_golang/prometheus"

const (
	labelUnit      = "unit"
	labelTeam      = "team"
	labelOperation = "operation"
	labelPath      = "path"
	labelScope     = "scope"
	labelName      = "name"
)

var (
	rmaLabelKeys        = []string{labelUnit, labelTeam, labelOperation, labelPath}
	flushLabelKeys      = []string{labelUnit, labelTeam, labelScope}
	collectiveLabelKeys = []string{labelUnit, labelTeam, labelName}
)

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ MetricHook = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements MetricHook using Prometheus counters.
type PrometheusMetrics struct {
	rmaCompleted        *prometheus.CounterVec
	rmaFailed           *prometheus.CounterVec
	flushCompleted      *prometheus.CounterVec
	flushFailed         *prometheus.CounterVec
	collectiveCompleted *prometheus.CounterVec
	collectiveFailed    *prometheus.CounterVec
}

// NewPrometheusMetrics constructs a MetricHook backed by Prometheus
// counters.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusMetrics{
		rmaCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "pgas_rma_completed_total",
			Help:        "Number of completed one-sided operations",
			ConstLabels: opts.ConstLabels,
		}, rmaLabelKeys),
		rmaFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "pgas_rma_failed_total",
			Help:        "Number of failed one-sided operations",
			ConstLabels: opts.ConstLabels,
		}, rmaLabelKeys),
		flushCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "pgas_flush_completed_total",
			Help:        "Number of completed flush operations",
			ConstLabels: opts.ConstLabels,
		}, flushLabelKeys),
		flushFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "pgas_flush_failed_total",
			Help:        "Number of failed flush operations",
			ConstLabels: opts.ConstLabels,
		}, flushLabelKeys),
		collectiveCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "pgas_collective_completed_total",
			Help:        "Number of completed collective and point-to-point operations",
			ConstLabels: opts.ConstLabels,
		}, collectiveLabelKeys),
		collectiveFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "pgas_collective_failed_total",
			Help:        "Number of failed collective and point-to-point operations",
			ConstLabels: opts.ConstLabels,
		}, collectiveLabelKeys),
	}

	var err error
	if p.rmaCompleted, err = registerCounterVec(reg, p.rmaCompleted); err != nil {
		return nil, err
	}
	if p.rmaFailed, err = registerCounterVec(reg, p.rmaFailed); err != nil {
		return nil, err
	}
	if p.flushCompleted, err = registerCounterVec(reg, p.flushCompleted); err != nil {
		return nil, err
	}
	if p.flushFailed, err = registerCounterVec(reg, p.flushFailed); err != nil {
		return nil, err
	}
	if p.collectiveCompleted, err = registerCounterVec(reg, p.collectiveCompleted); err != nil {
		return nil, err
	}
	if p.collectiveFailed, err = registerCounterVec(reg, p.collectiveFailed); err != nil {
		return nil, err
	}
	return p, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if ok := asAlreadyRegistered(err, &already); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func asAlreadyRegistered(err error, target *prometheus.AlreadyRegisteredError) bool {
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		*target = are
		return true
	}
	return false
}

func promLabels(attrs map[string]string, keys ...string) prometheus.Labels {
	labels := make(prometheus.Labels, len(keys))
	for _, key := range keys {
		labels[key] = attrs[key]
	}
	return labels
}

func (p *PrometheusMetrics) RMACompleted(op string, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs[labelOperation] = op
	p.rmaCompleted.With(promLabels(attrs, rmaLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) RMAFailed(op string, _ error, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs[labelOperation] = op
	p.rmaFailed.With(promLabels(attrs, rmaLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) FlushCompleted(attrs map[string]string) {
	p.flushCompleted.With(promLabels(attrs, flushLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) FlushFailed(_ error, attrs map[string]string) {
	p.flushFailed.With(promLabels(attrs, flushLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) CollectiveCompleted(name string, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs[labelName] = name
	p.collectiveCompleted.With(promLabels(attrs, collectiveLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) CollectiveFailed(name string, _ error, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs[labelName] = name
	p.collectiveFailed.With(promLabels(attrs, collectiveLabelKeys...)).Inc()
}
