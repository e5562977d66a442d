// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReadingsObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakwatch_readings_observed_total",
		Help: "Latest readings classified, by severity",
	}, []string{"room", "severity"})

	ReadingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_readings_ingested_total",
		Help: "Readings accepted by the ingest endpoint",
	})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakwatch_alerts_emitted_total",
		Help: "Alert records written by the monitor",
	}, []string{"room"})

	AlertWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leakwatch_alert_write_failures_total",
		Help: "Alert records that could not be persisted",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leakwatch_notifications_total",
		Help: "Notifications scheduled, by result",
	}, []string{"result"})

	WatchedPipes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leakwatch_watched_pipes",
		Help: "Pipes with an active Latest subscription",
	})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
