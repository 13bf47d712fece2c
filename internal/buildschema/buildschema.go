// Package buildschema configures HammerDB for a PostgreSQL TPROC-C schema
// build and triggers it.
package buildschema

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"

	"pg-tprocc-buildschema/internal/hammerdb"
)

const (
	Backend            = "pg"
	Benchmark          = "TPC-C"
	Port               = 5432
	PartitionThreshold = 200

	StartedMarker   = "SCHEMA BUILD STARTED"
	CompletedMarker = "SCHEMA BUILD COMPLETED"
)

type Params struct {
	Host              string
	SSLMode           string
	Warehouses        int
	Superuser         string
	SuperuserPassword string
	DefaultDatabase   string
	User              string
	Password          string
	Database          string
	Tablespace        string
}

// DefaultParams returns the stock build settings. DefaultDatabase keeps its
// leading space as shipped.
func DefaultParams() Params {
	return Params{
		Host:              "DB_SERVER_IP",
		SSLMode:           "prefer",
		Warehouses:        500,
		Superuser:         "admin",
		SuperuserPassword: "password",
		DefaultDatabase:   " postgres",
		User:              "tpcc",
		Password:          "tpcc",
		Database:          "tpcc",
		Tablespace:        "pg_default",
	}
}

// PartitionFor returns the pg_partition value for a warehouse count.
func PartitionFor(warehouses int) string {
	if warehouses >= PartitionThreshold {
		return "true"
	}
	return "false"
}

// Summary describes what Run applied.
type Summary struct {
	VirtualUsers int
	Partition    string
}

// Run sets every option on host and then builds the schema. The two status
// markers are written to out around the build.
func Run(ctx context.Context, host hammerdb.Host, cpus hammerdb.CPUCounter, p Params, out io.Writer, logger *zerolog.Logger) (*Summary, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if p.Warehouses < 1 {
		return nil, fmt.Errorf("warehouse count must be positive: %d", p.Warehouses)
	}

	logger.Info().Msg("Setting configuration")

	if err := host.DBSet(ctx, hammerdb.CategoryDB, Backend); err != nil {
		return nil, fmt.Errorf("failed to select backend: %w", err)
	}
	if err := host.DBSet(ctx, hammerdb.CategoryBenchmark, Benchmark); err != nil {
		return nil, fmt.Errorf("failed to select benchmark: %w", err)
	}

	connection := [][2]string{
		{"pg_host", p.Host},
		{"pg_port", strconv.Itoa(Port)},
		{"pg_sslmode", p.SSLMode},
	}
	for _, kv := range connection {
		if err := host.DISet(ctx, hammerdb.CategoryConnection, kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("failed to set connection option %s: %w", kv[0], err)
		}
	}

	vu, err := cpus.NumberOfCPUs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query cpu count: %w", err)
	}

	partition := PartitionFor(p.Warehouses)
	tpcc := [][2]string{
		{"pg_count_ware", strconv.Itoa(p.Warehouses)},
		{"pg_num_vu", strconv.Itoa(vu)},
		{"pg_superuser", p.Superuser},
		{"pg_superuserpass", p.SuperuserPassword},
		{"pg_defaultdbase", p.DefaultDatabase},
		{"pg_user", p.User},
		{"pg_pass", p.Password},
		{"pg_dbase", p.Database},
		{"pg_tspace", p.Tablespace},
		{"pg_partition", partition},
	}
	for _, kv := range tpcc {
		if err := host.DISet(ctx, hammerdb.CategoryTPCC, kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("failed to set tpcc option %s: %w", kv[0], err)
		}
	}

	logger.Info().
		Int("warehouses", p.Warehouses).
		Int("virtual_users", vu).
		Str("partition", partition).
		Msg("Configuration set")

	fmt.Fprintln(out, StartedMarker)
	if err := host.BuildSchema(ctx); err != nil {
		return nil, err
	}
	fmt.Fprintln(out, CompletedMarker)

	return &Summary{VirtualUsers: vu, Partition: partition}, nil
}
