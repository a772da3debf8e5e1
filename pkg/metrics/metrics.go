/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics exposes Prometheus instruments for the poll and alert
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "routermon"

// Result label values.
const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics holds every instrument and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	Collections        *prometheus.CounterVec
	CollectionDuration *prometheus.HistogramVec
	CycleDuration      prometheus.Histogram
	DevicesPolled      prometheus.Gauge
	DevicesSkipped     prometheus.Counter
	AlertsFired        *prometheus.CounterVec
	AlertsSuppressed   *prometheus.CounterVec
}

// New creates the instruments on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Collections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collections_total",
			Help:      "Total number of device collections by result",
		}, []string{"device_id", "result"}),
		CollectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collection_duration_seconds",
			Help:      "Time spent collecting one device snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"device_id"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Time spent on one polling cycle",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		DevicesPolled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_cycle_devices",
			Help:      "Number of devices polled in the last cycle",
		}),
		DevicesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_skipped_total",
			Help:      "Devices skipped because a previous collection was still running",
		}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Alert notifications attempted by rule, channel and result",
		}, []string{"rule_id", "channel", "result"}),
		AlertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Alerts that matched but were inside their cooldown window",
		}, []string{"rule_id"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Collections,
		m.CollectionDuration,
		m.CycleDuration,
		m.DevicesPolled,
		m.DevicesSkipped,
		m.AlertsFired,
		m.AlertsSuppressed,
	)

	return m
}

// RegisterGaugeFunc exposes a value computed at scrape time.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCollection records one device collection.
func (m *Metrics) ObserveCollection(deviceID string, elapsed time.Duration, err error) {
	m.Collections.WithLabelValues(deviceID, result(err)).Inc()
	m.CollectionDuration.WithLabelValues(deviceID).Observe(elapsed.Seconds())
}

// ObserveCycle records one polling cycle.
func (m *Metrics) ObserveCycle(elapsed time.Duration, polled, skipped int) {
	m.CycleDuration.Observe(elapsed.Seconds())
	m.DevicesPolled.Set(float64(polled))
	m.DevicesSkipped.Add(float64(skipped))
}

// ObserveFiring records one notification attempt.
func (m *Metrics) ObserveFiring(ruleID, channel string, err error) {
	m.AlertsFired.WithLabelValues(ruleID, channel, result(err)).Inc()
}

// ObserveSuppressed records an alert held back by its cooldown.
func (m *Metrics) ObserveSuppressed(ruleID string) {
	m.AlertsSuppressed.WithLabelValues(ruleID).Inc()
}

// ForgetDevice drops the per-device series of a removed device.
func (m *Metrics) ForgetDevice(deviceID string) {
	m.Collections.DeletePartialMatch(prometheus.Labels{"device_id": deviceID})
	m.CollectionDuration.DeletePartialMatch(prometheus.Labels{"device_id": deviceID})
}

func result(err error) string {
	if err != nil {
		return resultError
	}

	return resultSuccess
}
