// Package metrics declares the Prometheus metrics exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingress metrics
	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbot_readings_total",
			Help: "Total number of sensor readings received",
		},
		[]string{"kind", "status"}, // status: valid, invalid
	)

	ReadingsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorbot_readings_dropped_total",
			Help: "Readings dropped because the bridge queue was full",
		},
	)

	LatestValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sensorbot_latest_value",
			Help: "Latest value received per sensor kind",
		},
		[]string{"kind"},
	)

	// Alerting metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbot_notifications_total",
			Help: "Notifications handed to the sink",
		},
		[]string{"type", "status"}, // status: sent, failed
	)

	Excursion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorbot_excursion_active",
			Help: "1 while temperature is tracked above threshold",
		},
	)

	Threshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorbot_temp_threshold_celsius",
			Help: "Configured temperature threshold",
		},
	)

	// Command surface
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorbot_commands_total",
			Help: "Slash commands handled",
		},
		[]string{"command"},
	)

	ConfigSaveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorbot_config_save_errors_total",
			Help: "Failed writes of the persisted bot config",
		},
	)
)
