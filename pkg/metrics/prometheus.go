package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sidbot/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	batchItems    *prometheus.CounterVec
	orders        *prometheus.CounterVec
	events        *prometheus.CounterVec
	openPositions prometheus.Gauge
	errorsTotal   *prometheus.CounterVec
}

var (
	defaultRecorder *Recorder
	once            sync.Once
)

// New returns the process-wide recorder registered on the default registry.
func New() *Recorder {
	once.Do(func() { defaultRecorder = NewWith(prometheus.DefaultRegisterer) })
	return defaultRecorder
}

// NewWith registers the collectors on reg. Tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sidbot_job_runs_total",
			Help: "Scheduled or manual job runs by result",
		}, []string{"job", "result"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sidbot_job_duration_seconds",
			Help:    "Job wall time",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job"}),
		batchItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sidbot_batch_items_total",
			Help: "Per-symbol batch outcomes",
		}, []string{"op", "result"}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sidbot_orders_submitted_total",
			Help: "Orders sent to the broker",
		}, []string{"side", "kind"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sidbot_signal_events_total",
			Help: "Signal lifecycle events",
		}, []string{"type"}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Name: "sidbot_open_positions",
			Help: "Broker positions seen by the last exit pass",
		}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sidbot_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
	}
}

func (r *Recorder) RecordJob(job string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.jobRuns.WithLabelValues(job, result).Inc()
	r.jobDuration.WithLabelValues(job).Observe(seconds)
}

func (r *Recorder) RecordBatch(op string, succeeded, failed int) {
	r.batchItems.WithLabelValues(op, "ok").Add(float64(succeeded))
	r.batchItems.WithLabelValues(op, "error").Add(float64(failed))
}

// RecordOrder counts an order. The symbol is left out of the labels to bound cardinality.
func (r *Recorder) RecordOrder(_ string, side models.Side, kind string) {
	r.orders.WithLabelValues(string(side), kind).Inc()
}

func (r *Recorder) RecordEvent(t models.EventType) {
	r.events.WithLabelValues(string(t)).Inc()
}

func (r *Recorder) RecordOpenPositions(n int) {
	r.openPositions.Set(float64(n))
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordJob(string, float64, error)        {}
func (Nop) RecordBatch(string, int, int)            {}
func (Nop) RecordOrder(string, models.Side, string) {}
func (Nop) RecordEvent(models.EventType)            {}
func (Nop) RecordOpenPositions(int)                 {}
func (Nop) RecordError(string)                      {}
