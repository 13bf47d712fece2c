package pgcheck

import (
	"context"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"pg-tprocc-buildschema/internal/metrics"
)

// Tables created by a TPROC-C schema build.
var Tables = []string{
	"customer",
	"district",
	"history",
	"item",
	"new_order",
	"order_line",
	"orders",
	"stock",
	"warehouse",
}

type VerifyConfig struct {
	Warehouses  int
	Partitioned bool
	Concurrency int
}

type CheckResult struct {
	Name   string
	Passed bool
	Detail string
}

type VerifyReport struct {
	Checks []CheckResult
}

func (r *VerifyReport) Failed() []CheckResult {
	var failed []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Querier is the part of DBConn the checks need.
type Querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type check struct {
	name string
	run  func(ctx context.Context, db Querier) (bool, string, error)
}

func tableExists(ctx context.Context, db Querier, table string) (bool, error) {
	var exists bool
	if err := db.GetContext(ctx, &exists, "SELECT to_regclass($1) IS NOT NULL", table); err != nil {
		return false, err
	}
	return exists, nil
}

func tableExistsCheck(table string) check {
	return check{
		name: "table_" + table,
		run: func(ctx context.Context, db Querier) (bool, string, error) {
			exists, err := tableExists(ctx, db, table)
			if err != nil {
				return false, "", err
			}
			if !exists {
				return false, fmt.Sprintf("table %s is missing", table), nil
			}
			return true, "", nil
		},
	}
}

// warehouseCountCheck looks the table up first, counting a missing table
// would fail the whole verification with 42P01.
func warehouseCountCheck(want int) check {
	return check{
		name: "warehouse_count",
		run: func(ctx context.Context, db Querier) (bool, string, error) {
			exists, err := tableExists(ctx, db, "warehouse")
			if err != nil {
				return false, "", err
			}
			if !exists {
				return false, fmt.Sprintf("table warehouse is missing, want %d warehouses", want), nil
			}
			var got int
			if err := db.GetContext(ctx, &got, "SELECT count(*) FROM warehouse"); err != nil {
				return false, "", err
			}
			return got == want, fmt.Sprintf("%d warehouses, want %d", got, want), nil
		},
	}
}

func partitionCheck(want bool) check {
	return check{
		name: "order_line_partitioned",
		run: func(ctx context.Context, db Querier) (bool, string, error) {
			var relkind string
			if err := db.GetContext(ctx, &relkind,
				"SELECT coalesce((SELECT relkind::text FROM pg_class WHERE oid = to_regclass('order_line')), '')",
			); err != nil {
				return false, "", err
			}
			if relkind == "" {
				return false, "table order_line is missing", nil
			}
			got := relkind == "p"
			return got == want, fmt.Sprintf("partitioned=%t, want %t", got, want), nil
		},
	}
}

func checksFor(cfg VerifyConfig) []check {
	checks := make([]check, 0, len(Tables)+2)
	for _, t := range Tables {
		checks = append(checks, tableExistsCheck(t))
	}
	checks = append(checks, warehouseCountCheck(cfg.Warehouses), partitionCheck(cfg.Partitioned))
	return checks
}

// Verify inspects a freshly built schema through db. Query errors abort the
// verification, failed checks are reported in the result.
func Verify(ctx context.Context, db Querier, cfg VerifyConfig, logger *zerolog.Logger) (*VerifyReport, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	pool := pond.NewPool(max(cfg.Concurrency, 1))
	defer pool.StopAndWait()

	checks := checksFor(cfg)
	results := make([]CheckResult, len(checks))
	var mu sync.Mutex

	group := pool.NewGroup()
	for i, c := range checks {
		i, c := i, c
		group.SubmitErr(func() error {
			passed, detail, err := c.run(ctx, db)
			if err != nil {
				metrics.PostgresChecks.WithLabelValues(c.name, "error").Inc()
				return fmt.Errorf("check %s: %w", c.name, err)
			}
			status := "success"
			if !passed {
				status = "failure"
			}
			metrics.PostgresChecks.WithLabelValues(c.name, status).Inc()
			logger.Debug().Str("check", c.name).Bool("passed", passed).Str("detail", detail).Msg("Check done")

			mu.Lock()
			results[i] = CheckResult{Name: c.name, Passed: passed, Detail: detail}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("verification aborted: %w", err)
	}

	report := &VerifyReport{Checks: results}
	logger.Info().
		Int("checks", len(results)).
		Int("failed", len(report.Failed())).
		Msg("Schema verification finished")
	return report, nil
}
