// Package sysinfo provides CPU and memory figures for the host via gopsutil.
package sysinfo

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"codeberg.org/kawashima/loadlog/internal/errors"
)

// cpu.Percent needs a comparison window; 100ms keeps the skew per sample small
const cpuSampleWindow = 100 * time.Millisecond

// Inspector reports process-wide CPU and memory state.
type Inspector interface {
	// CPULoad returns the aggregate CPU utilization percentage and the
	// per-core percentages, measured over a short window.
	CPULoad(ctx context.Context) (total float64, perCPU []float64, err error)

	// Memory returns the current virtual memory usage.
	Memory(ctx context.Context) (Memory, error)

	// Constants returns static hardware facts, queried once per run.
	Constants(ctx context.Context) (Constants, error)
}

// Memory is one observation of virtual memory usage.
type Memory struct {
	Used        uint64
	Total       uint64
	UsedPercent float64
}

// Constants are the hardware facts written to the log header.
type Constants struct {
	PhysicalCores int
	LogicalCores  int
	TotalMemory   uint64
}

type gopsutilInspector struct{}

// New returns an Inspector backed by gopsutil.
func New() Inspector {
	return &gopsutilInspector{}
}

func (*gopsutilInspector) CPULoad(ctx context.Context) (float64, []float64, error) {
	errFactory := errors.New()

	total, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return 0, nil, errFactory.Wrap(ErrCPULoadFailed, err)
	}
	if len(total) == 0 {
		return 0, nil, errFactory.New(ErrCPULoadFailed)
	}

	perCPU, err := cpu.PercentWithContext(ctx, cpuSampleWindow, true)
	if err != nil {
		return 0, nil, errFactory.Wrap(ErrCPULoadFailed, err)
	}

	return total[0], perCPU, nil
}

func (*gopsutilInspector) Memory(ctx context.Context) (Memory, error) {
	errFactory := errors.New()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Memory{}, errFactory.Wrap(ErrMemoryFailed, err)
	}

	return Memory{
		Used:        vm.Used,
		Total:       vm.Total,
		UsedPercent: vm.UsedPercent,
	}, nil
}

func (*gopsutilInspector) Constants(ctx context.Context) (Constants, error) {
	errFactory := errors.New()

	physical, err := cpu.CountsWithContext(ctx, false)
	if err != nil {
		return Constants{}, errFactory.Wrap(ErrCoreCountFailed, err)
	}

	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return Constants{}, errFactory.Wrap(ErrCoreCountFailed, err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Constants{}, errFactory.Wrap(ErrMemoryFailed, err)
	}

	return Constants{
		PhysicalCores: physical,
		LogicalCores:  logical,
		TotalMemory:   vm.Total,
	}, nil
}
