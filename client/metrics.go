package client

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeffrom/fluentlog/internal"
)

// Metrics collects sender counters. A nil *Metrics discards everything.
type Metrics struct {
	queueLength   prometheus.Gauge
	written       prometheus.Counter
	writeErrors   prometheus.Counter
	encodeErrors  prometheus.Counter
	connects      prometheus.Counter
	connectErrors prometheus.Counter
}

// NewMetrics returns sender metrics labeled with the base tag and registers
// them with reg. If reg is nil the metrics are not registered. Registering a
// second sender with the same tag shares the existing collectors.
func NewMetrics(reg prometheus.Registerer, tag string) *Metrics {
	labels := prometheus.Labels{"tag": tag}
	m := &Metrics{
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "fluent_sender_queue_length",
			Help:        "Records waiting to be written.",
			ConstLabels: labels,
		}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fluent_sender_records_written_total",
			Help:        "Records written to the server.",
			ConstLabels: labels,
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fluent_sender_write_errors_total",
			Help:        "Records that failed to write.",
			ConstLabels: labels,
		}),
		encodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fluent_sender_encode_errors_total",
			Help:        "Events rejected because they could not be encoded.",
			ConstLabels: labels,
		}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fluent_sender_connects_total",
			Help:        "Successful connections to the server.",
			ConstLabels: labels,
		}),
		connectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fluent_sender_connect_errors_total",
			Help:        "Failed connection attempts.",
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		m.queueLength = register(reg, m.queueLength).(prometheus.Gauge)
		m.written = register(reg, m.written).(prometheus.Counter)
		m.writeErrors = register(reg, m.writeErrors).(prometheus.Counter)
		m.encodeErrors = register(reg, m.encodeErrors).(prometheus.Counter)
		m.connects = register(reg, m.connects).(prometheus.Counter)
		m.connectErrors = register(reg, m.connectErrors).(prometheus.Counter)
	}
	return m
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		internal.LogError(errors.Wrap(err, "failed to register metric"))
	}
	return c
}

func (m *Metrics) setQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

func (m *Metrics) recordWritten() {
	if m == nil {
		return
	}
	m.written.Inc()
}

func (m *Metrics) writeFailed() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}

func (m *Metrics) encodeFailed() {
	if m == nil {
		return
	}
	m.encodeErrors.Inc()
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

func (m *Metrics) connectFailed() {
	if m == nil {
		return
	}
	m.connectErrors.Inc()
}
