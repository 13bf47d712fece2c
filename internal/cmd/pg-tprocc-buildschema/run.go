package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"pg-tprocc-buildschema/internal/buildschema"
	hdberr "pg-tprocc-buildschema/internal/error"
	"pg-tprocc-buildschema/internal/hammerdb"
	"pg-tprocc-buildschema/internal/metrics"
	"pg-tprocc-buildschema/internal/pgcheck"
)

var cpuCounter hammerdb.CPUCounter = hammerdb.LocalCPUs{}

func adminTarget(config *Config) pgcheck.Target {
	return pgcheck.Target{
		Host:     config.Connection.Host,
		Port:     buildschema.Port,
		SSLMode:  config.Connection.SSLMode,
		User:     config.TPCC.Superuser,
		Password: config.TPCC.SuperuserPassword,
		Database: config.TPCC.DefaultDatabase,
	}
}

func appTarget(config *Config) pgcheck.Target {
	return pgcheck.Target{
		Host:     config.Connection.Host,
		Port:     buildschema.Port,
		SSLMode:  config.Connection.SSLMode,
		User:     config.TPCC.User,
		Password: config.TPCC.Password,
		Database: config.TPCC.Database,
	}
}

func createRunner(config *Config) (*hammerdb.ExecRunner, error) {
	return hammerdb.NewExecRunner(hammerdb.ExecRunnerConfig{
		Binary:             config.HammerDB.Binary,
		Dir:                config.HammerDB.Dir,
		TailLines:          config.HammerDB.TailLines,
		WaitDelay:          config.HammerDB.WaitDelay,
		FailurePatterns:    config.HammerDB.FailurePatterns,
		TranscriptFile:     config.HammerDB.TranscriptFile,
		TranscriptEncoding: config.HammerDB.TranscriptEncoding,
	}, &logger)
}

func performBuild(ctx context.Context, config *Config, out io.Writer) error {
	defer writeMetrics(config)

	if config.Preflight.Enabled {
		if _, err := pgcheck.Preflight(ctx, adminTarget(config), config.TPCC.Database,
			pgcheck.RetryConfig{MaxRetries: config.Preflight.Retries}, &logger); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
	}

	dialect, err := hammerdb.ParseDialect(config.HammerDB.Dialect)
	if err != nil {
		return err
	}
	runner, err := createRunner(config)
	if err != nil {
		return fmt.Errorf("error creating hammerdb runner: %w", err)
	}
	session := hammerdb.NewSession(dialect, runner, &logger)

	buildCtx := ctx
	if config.HammerDB.Timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, config.HammerDB.Timeout)
		defer cancel()
	}

	start := time.Now()
	summary, err := buildschema.Run(buildCtx, session, cpuCounter, config.Params(), out, &logger)
	metrics.ConfiguredWarehouses.Set(float64(config.TPCC.Warehouses))
	if err != nil {
		metrics.BuildSchemaRuns.WithLabelValues("failure").Inc()
		var hte *hdberr.HostToolError
		if errors.As(err, &hte) {
			logger.Error().
				Int("exit_code", hte.ExitCode).
				Interface("misc", hte.Misc).
				Str("output_tail", hte.OutputTail()).
				Msg("hammerdbcli reported a failure")
		}
		return err
	}
	metrics.BuildSchemaRuns.WithLabelValues("success").Inc()
	metrics.BuildSchemaDuration.Observe(time.Since(start).Seconds())
	metrics.VirtualUsers.Set(float64(summary.VirtualUsers))
	if summary.Partition == "true" {
		metrics.PartitionEnabled.Set(1)
	} else {
		metrics.PartitionEnabled.Set(0)
	}

	if res := session.Result(); res != nil {
		logger.Info().
			Dur("duration", res.Duration).
			Int("output_lines", res.OutputLines).
			Msg("Schema build finished")
	}

	if config.Verify.Enabled {
		if err := verifySchema(ctx, config, summary); err != nil {
			return err
		}
	}
	return nil
}

func verifySchema(ctx context.Context, config *Config, summary *buildschema.Summary) error {
	dbConn := pgcheck.NewDBConn(pgcheck.RetryConfig{MaxRetries: config.Verify.Retries}, &logger)
	target := appTarget(config)
	logger.Info().Str("dsn", target.Redacted()).Msg("Opening connection to built database")
	if err := dbConn.Open(ctx, target.DSN(), config.Verify.Concurrency); err != nil {
		return fmt.Errorf("error opening database connection: %w", err)
	}
	defer dbConn.Close()

	report, err := pgcheck.Verify(ctx, dbConn, pgcheck.VerifyConfig{
		Warehouses:  config.TPCC.Warehouses,
		Partitioned: summary.Partition == "true",
		Concurrency: config.Verify.Concurrency,
	}, &logger)
	if err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		for _, c := range failed {
			logger.Error().Str("check", c.Name).Str("detail", c.Detail).Msg("Verification check failed")
		}
		return fmt.Errorf("%d of %d verification checks failed", len(failed), len(report.Checks))
	}
	return nil
}

func writeMetrics(config *Config) {
	if config.Metrics.Textfile == "" {
		return
	}
	if err := metrics.WriteTextfile(config.Metrics.Textfile); err != nil {
		logger.Warn().Err(err).Msg("Could not write metrics")
		return
	}
	logger.Debug().Str("path", config.Metrics.Textfile).Msg("Metrics written")
}
