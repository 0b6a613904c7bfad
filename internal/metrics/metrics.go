// Package metrics holds the Prometheus collectors of the process.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rollcall"

// Metrics groups every collector.
type Metrics struct {
	Recordings   *prometheus.CounterVec
	StoreWrites  *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	InFlight     prometheus.Gauge
	Deliveries   *prometheus.CounterVec
}

// New constructs the collectors and registers them on reg. A nil reg
// means prometheus.DefaultRegisterer. Collectors already registered are
// reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{}
	var err error

	if m.Recordings, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attendance_attempts_total",
		Help:      "Attendance record attempts partitioned by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.StoreWrites, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "writes_total",
		Help:      "Record store writes partitioned by key and sync status.",
	}, []string{"key", "status"})); err != nil {
		return nil, err
	}
	if m.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if m.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if m.InFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})); err != nil {
		return nil, err
	}
	if m.Deliveries, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "notifications_total",
		Help:      "Notifications delivered, dropped or failed, partitioned by kind and result.",
	}, []string{"kind", "result"})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// ObserveRecording counts one attendance attempt.
func (m *Metrics) ObserveRecording(outcome string) {
	if m == nil {
		return
	}
	m.Recordings.WithLabelValues(outcome).Inc()
}

// ObserveStoreWrite counts one store write.
func (m *Metrics) ObserveStoreWrite(key, status string) {
	if m == nil {
		return
	}
	m.StoreWrites.WithLabelValues(key, status).Inc()
}

// ObserveDelivery counts one worker notification.
func (m *Metrics) ObserveDelivery(kind, result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(kind, result).Inc()
}
