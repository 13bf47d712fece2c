package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Schema build metrics
	BuildSchemaDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pg_tprocc_buildschema_duration_seconds",
			Help:    "Duration of the HammerDB schema build in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
	)

	BuildSchemaRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pg_tprocc_buildschema_runs_total",
			Help: "Total number of schema build runs",
		},
		[]string{"status"}, // status can be "success" or "failure"
	)

	ConfiguredWarehouses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pg_tprocc_buildschema_warehouses",
			Help: "Warehouse count the schema was built with",
		},
	)

	VirtualUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pg_tprocc_buildschema_virtual_users",
			Help: "Virtual users used to build the schema",
		},
	)

	PartitionEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pg_tprocc_buildschema_partition_enabled",
			Help: "1 when the schema was built with partitioning",
		},
	)

	// Host tool metrics
	HostToolOutputLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pg_tprocc_buildschema_host_output_lines_total",
			Help: "Total number of output lines read from hammerdbcli",
		},
		[]string{"stream"}, // stream can be "stdout" or "stderr"
	)

	// Postgres check metrics
	PostgresChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pg_tprocc_buildschema_postgres_checks_total",
			Help: "Total number of preflight and verification checks",
		},
		[]string{"check", "status"},
	)
)

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
