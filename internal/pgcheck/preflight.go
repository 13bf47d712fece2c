package pgcheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"pg-tprocc-buildschema/internal/metrics"
)

type PreflightReport struct {
	ServerVersion  string
	Superuser      bool
	DatabaseExists bool
}

// Preflight connects to the maintenance database as the superuser the
// schema build will use and checks the target database is not there yet.
func Preflight(ctx context.Context, admin Target, targetDatabase string, retry RetryConfig, logger *zerolog.Logger) (*PreflightReport, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if trimmed := strings.TrimSpace(admin.Database); trimmed != admin.Database {
		logger.Warn().
			Str("database", admin.Database).
			Str("using", trimmed).
			Msg("Default database name has surrounding whitespace, trimming it for preflight")
		admin.Database = trimmed
	}

	logger.Info().Str("dsn", admin.Redacted()).Msg("Running preflight checks")

	var conn *pgx.Conn
	err := withRetry(ctx, retry.withDefaults(), logger, func() error {
		var err error
		conn, err = pgx.Connect(ctx, admin.DSN())
		return err
	}, nil)
	if err != nil {
		metrics.PostgresChecks.WithLabelValues("preflight_connect", "failure").Inc()
		return nil, fmt.Errorf("failed to connect as %s: %w", admin.User, err)
	}
	defer conn.Close(context.WithoutCancel(ctx))
	metrics.PostgresChecks.WithLabelValues("preflight_connect", "success").Inc()

	return inspect(ctx, conn, admin.User, targetDatabase, logger)
}

// rowQuerier is the part of pgx.Conn preflight needs.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func inspect(ctx context.Context, conn rowQuerier, user, targetDatabase string, logger *zerolog.Logger) (*PreflightReport, error) {
	report := &PreflightReport{}
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&report.ServerVersion); err != nil {
		return nil, fmt.Errorf("failed to query server version: %w", err)
	}
	if err := conn.QueryRow(ctx,
		"SELECT rolsuper FROM pg_roles WHERE rolname = current_user",
	).Scan(&report.Superuser); err != nil {
		return nil, fmt.Errorf("failed to query role attributes: %w", err)
	}
	if err := conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", targetDatabase,
	).Scan(&report.DatabaseExists); err != nil {
		return nil, fmt.Errorf("failed to look up database %s: %w", targetDatabase, err)
	}

	if !report.Superuser {
		logger.Warn().Str("user", user).Msg("Role is not a superuser, schema build may fail to create the database")
	}
	if report.DatabaseExists {
		metrics.PostgresChecks.WithLabelValues("preflight_database_absent", "failure").Inc()
		return report, fmt.Errorf("target database %q already exists", targetDatabase)
	}
	metrics.PostgresChecks.WithLabelValues("preflight_database_absent", "success").Inc()

	logger.Info().
		Str("server_version", report.ServerVersion).
		Bool("superuser", report.Superuser).
		Msg("Preflight checks passed")
	return report, nil
}
