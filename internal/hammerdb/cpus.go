package hammerdb

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUCounter reports the processor count HammerDB's numberOfCPUs returns.
type CPUCounter interface {
	NumberOfCPUs(ctx context.Context) (int, error)
}

// LocalCPUs counts logical CPUs on the machine running hammerdbcli.
type LocalCPUs struct{}

func (LocalCPUs) NumberOfCPUs(ctx context.Context) (int, error) {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to count cpus: %w", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid cpu count: %d", n)
	}
	return n, nil
}

// FixedCPUs always reports the same count.
type FixedCPUs int

func (f FixedCPUs) NumberOfCPUs(ctx context.Context) (int, error) {
	if f < 1 {
		return 0, fmt.Errorf("invalid cpu count: %d", int(f))
	}
	return int(f), nil
}
