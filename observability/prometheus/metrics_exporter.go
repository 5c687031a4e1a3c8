package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-cycle-dispatcher/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds   *prom.HistogramVec
	taskPanicTotal        *prom.CounterVec
	taskRejectedTotal     *prom.CounterVec
	taskOutcomeTotal      *prom.CounterVec
	doubleResolutionTotal *prom.CounterVec
	drainBatchSize        *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// Payloads on a main context are expected to be short; buckets start at 10µs.
var defaultDurationBuckets = prom.ExponentialBuckets(0.00001, 4, 10)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "dispatch"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = defaultDurationBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Payload execution duration in seconds, one sample per routine step.",
		Buckets:   buckets,
	}, []string{"dispatcher", "cycle", "kind"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of payload panics.",
	}, []string{"dispatcher"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected submissions.",
	}, []string{"dispatcher", "reason"})
	outcomeVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_outcome_total",
		Help:      "Terminal completion states by cycle.",
	}, []string{"dispatcher", "cycle", "state"})
	doubleVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "double_resolution_total",
		Help:      "Attempts to settle a completion more than once.",
	}, []string{"dispatcher"})
	batchVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "drain_batch_size",
		Help:      "Items taken from a cycle queue by the most recent drain.",
	}, []string{"dispatcher", "cycle"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if outcomeVec, err = registerCollector(reg, outcomeVec); err != nil {
		return nil, err
	}
	if doubleVec, err = registerCollector(reg, doubleVec); err != nil {
		return nil, err
	}
	if batchVec, err = registerCollector(reg, batchVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds:   durationVec,
		taskPanicTotal:        panicVec,
		taskRejectedTotal:     rejectedVec,
		taskOutcomeTotal:      outcomeVec,
		doubleResolutionTotal: doubleVec,
		drainBatchSize:        batchVec,
	}, nil
}

// RecordTaskDuration records payload execution duration.
func (m *MetricsExporter) RecordTaskDuration(dispatcherName string, cycle string, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(
		normalizeLabel(dispatcherName, "unknown"),
		normalizeLabel(cycle, "unknown"),
		normalizeLabel(kind, "unknown"),
	).Observe(duration.Seconds())
}

// RecordTaskPanic records payload panic events.
func (m *MetricsExporter) RecordTaskPanic(dispatcherName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(dispatcherName, "unknown")).Inc()
}

// RecordQueueDepth records the size of a drained batch.
func (m *MetricsExporter) RecordQueueDepth(dispatcherName string, cycle string, depth int) {
	if m == nil {
		return
	}
	m.drainBatchSize.WithLabelValues(normalizeLabel(dispatcherName, "unknown"), normalizeLabel(cycle, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records submission rejection events.
func (m *MetricsExporter) RecordTaskRejected(dispatcherName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(dispatcherName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordTaskOutcome counts terminal completion states.
func (m *MetricsExporter) RecordTaskOutcome(dispatcherName string, cycle string, state string) {
	if m == nil {
		return
	}
	m.taskOutcomeTotal.WithLabelValues(
		normalizeLabel(dispatcherName, "unknown"),
		normalizeLabel(cycle, "unknown"),
		normalizeLabel(state, "unknown"),
	).Inc()
}

// RecordDoubleResolution counts completion misuse.
func (m *MetricsExporter) RecordDoubleResolution(dispatcherName string) {
	if m == nil {
		return
	}
	m.doubleResolutionTotal.WithLabelValues(normalizeLabel(dispatcherName, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
