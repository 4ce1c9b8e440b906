// Package metrics exposes receiver counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cresta"

// Metrics holds all receiver metrics, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	EdgesReceived     prometheus.Counter
	EdgesDropped      prometheus.Counter
	FramesDecoded     prometheus.Counter
	FrameRejects      *prometheus.CounterVec
	ChecksumErrors    *prometheus.CounterVec
	PacketsDropped    *prometheus.CounterVec
	Measurements      *prometheus.CounterVec
	Sensors           prometheus.Gauge
	DeliverDuration   prometheus.Histogram
	MQTTConnected     prometheus.Gauge
	MQTTBufferDropped prometheus.Counter
	StoreErrors       prometheus.Counter
}

// New creates the metrics and registers them together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		EdgesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "edges_total",
			Help:      "Edge durations fed to the decoder",
		}),
		EdgesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "edges_dropped_total",
			Help:      "Edge durations dropped because the decoder queue was full",
		}),
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "frames_total",
			Help:      "Complete raw frames emitted by the decoder",
		}),
		FrameRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "rejects_total",
			Help:      "Frames abandoned by the decoder, by reason",
		}, []string{"reason"}),
		ChecksumErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "checksum_errors_total",
			Help:      "Packets discarded by checksum, by failing checksum",
		}, []string{"checksum"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "packets_dropped_total",
			Help:      "Valid packets that could not be delivered, by cause",
		}, []string{"cause"}),
		Measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "measurements_total",
			Help:      "Measurements published, by sensor name",
		}, []string{"sensor"}),
		Sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "sensors",
			Help:      "Registered sensors",
		}),
		DeliverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "deliver_duration_seconds",
			Help:      "Time to validate and publish one raw packet",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "MQTT connection status (0=disconnected, 1=connected)",
		}),
		MQTTBufferDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "buffer_dropped_total",
			Help:      "Messages lost to buffer overflow while disconnected",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Measurements that could not be written to the history store",
		}),
	}

	m.registry.MustRegister(
		m.EdgesReceived,
		m.EdgesDropped,
		m.FramesDecoded,
		m.FrameRejects,
		m.ChecksumErrors,
		m.PacketsDropped,
		m.Measurements,
		m.Sensors,
		m.DeliverDuration,
		m.MQTTConnected,
		m.MQTTBufferDropped,
		m.StoreErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordReject increments the reject counter for a decoder reason.
func (m *Metrics) RecordReject(reason string) {
	m.FrameRejects.WithLabelValues(reason).Inc()
}

// RecordChecksumError increments the checksum error counter.
func (m *Metrics) RecordChecksumError(checksum string) {
	m.ChecksumErrors.WithLabelValues(checksum).Inc()
}

// RecordDrop increments the dropped packet counter.
func (m *Metrics) RecordDrop(cause string) {
	m.PacketsDropped.WithLabelValues(cause).Inc()
}

// RecordMeasurement increments the per-sensor measurement counter.
func (m *Metrics) RecordMeasurement(sensor string) {
	m.Measurements.WithLabelValues(sensor).Inc()
}

// RecordDeliver observes the time spent delivering one packet.
func (m *Metrics) RecordDeliver(d time.Duration) {
	m.DeliverDuration.Observe(d.Seconds())
}

// RecordMQTTStatus updates the MQTT connection gauge.
func (m *Metrics) RecordMQTTStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.MQTTConnected.Set(value)
}

// RecordMQTTBufferDrop counts one message lost from the offline buffer.
func (m *Metrics) RecordMQTTBufferDrop() {
	m.MQTTBufferDropped.Inc()
}
