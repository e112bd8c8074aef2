package pipeline

import "github.com/prometheus/client_golang/prometheus"

var (
	commandRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avro_exporter_command_runs_total",
			Help: "Total number of command runs by outcome.",
		},
		[]string{"pipeline", "command", "status"},
	)

	commandDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avro_exporter_command_duration_seconds",
			Help:    "Command run latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pipeline", "command"},
	)
)

func init() {
	prometheus.MustRegister(commandRunsTotal, commandDurationSeconds)
}
