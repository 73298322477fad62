// Package profiler implements the sample-log-wait loop around a
// profiled child process.
package profiler

import (
	"context"
	"time"

	"codeberg.org/kawashima/loadlog/internal/errors"
	"codeberg.org/kawashima/loadlog/internal/logger"
	"codeberg.org/kawashima/loadlog/internal/proc"
	"codeberg.org/kawashima/loadlog/internal/sysinfo"
	"codeberg.org/kawashima/loadlog/internal/thermal"
)

// Profiler runs a command and records system state before, during and
// after its execution. A single goroutine drives the whole run; the
// only concurrent entity is the child process itself.
type Profiler struct {
	inspector sysinfo.Inspector
	prober    thermal.Prober
	launcher  proc.Launcher
	recorder  Recorder
}

func New(inspector sysinfo.Inspector, prober thermal.Prober, launcher proc.Launcher, recorder Recorder) *Profiler {
	return &Profiler{
		inspector: inspector,
		prober:    prober,
		launcher:  launcher,
		recorder:  recorder,
	}
}

// Run executes one profiling run and returns the child's exit status.
// The header and any samples taken before a failure stay in the log;
// a partial log is a legitimate diagnostic artifact.
func (p *Profiler) Run(ctx context.Context, rc RunContext) (proc.ExitStatus, error) {
	errFactory := errors.New()

	if err := rc.validate(); err != nil {
		return proc.ExitStatus{}, err
	}

	constants, err := p.inspector.Constants(ctx)
	if err != nil {
		return proc.ExitStatus{}, errFactory.Wrap(ErrEnvironment, err)
	}

	hdr := &Header{
		Computer:      rc.Computer,
		Command:       rc.Command,
		PhysicalCores: constants.PhysicalCores,
		LogicalCores:  constants.LogicalCores,
		TotalMemory:   constants.TotalMemory,
		Start:         time.Now(),
		PreWait:       rc.PreWait,
		Interval:      rc.Interval,
		PostWait:      rc.PostWait,
	}
	if err := p.recorder.WriteHeader(hdr); err != nil {
		return proc.ExitStatus{}, errFactory.Wrap(ErrRecord, err)
	}

	// Baseline before the command is launched
	if err := p.record(ctx, PhasePre); err != nil {
		return proc.ExitStatus{}, err
	}

	if err := p.waitSampling(ctx, rc.PreWait, rc.Interval, PhasePre); err != nil {
		return proc.ExitStatus{}, err
	}

	child, err := p.launcher.Spawn(rc.Command)
	if err != nil {
		return proc.ExitStatus{}, errFactory.Wrap(ErrLaunch, err)
	}
	logger.Info().Str("command", rc.Command).Msg("Command launched")

	status, err := p.watch(ctx, child, rc.Interval)
	if err != nil {
		return status, err
	}
	logger.Debug().Int("exit_code", status.Code).Str("signal", status.Signal).Msg("Command finished")

	// Immediate post-run state, mirroring the pre-run baseline
	if err := p.record(ctx, PhasePost); err != nil {
		return status, err
	}

	if err := p.waitSampling(ctx, rc.PostWait, rc.Interval, PhasePost); err != nil {
		return status, err
	}

	if err := p.record(ctx, PhasePostFinal); err != nil {
		return status, err
	}

	return status, nil
}

func (rc RunContext) validate() error {
	errFactory := errors.New()

	if rc.Command == "" {
		return errFactory.New(errors.ErrMissingCommand)
	}
	if rc.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, rc.Interval.String())
	}
	if rc.PreWait < 0 || rc.PostWait < 0 {
		return errFactory.New(errors.ErrInvalidWait)
	}

	return nil
}

// watch polls the child at the sampling interval until it terminates.
// Exit detection happens only at poll boundaries, so a sample taken
// just after the child exits may still be tagged running; the lag is
// bounded by one interval.
func (p *Profiler) watch(ctx context.Context, child proc.Child, interval time.Duration) (proc.ExitStatus, error) {
	errFactory := errors.New()

	for child.IsAlive() {
		if err := sleepCtx(ctx, interval); err != nil {
			// Reap the child before surfacing cancellation; a leaked
			// process outliving the profiler is a correctness bug
			_ = child.Terminate()
			status, _ := child.Wait()
			return status, errFactory.Wrap(ErrCanceled, err)
		}

		if err := p.record(ctx, PhaseRunning); err != nil {
			_ = child.Terminate()
			status, _ := child.Wait()
			return status, err
		}
	}

	return child.Wait()
}

// waitSampling pauses for the given wait duration. When the sampling
// interval is shorter than the remaining wait, samples keep being
// collected at the configured cadence; otherwise the pause is a single
// sleep with no extra samples.
func (p *Profiler) waitSampling(ctx context.Context, wait, interval time.Duration, phase Phase) error {
	errFactory := errors.New()

	for remaining := wait; remaining > 0; remaining -= interval {
		if interval >= remaining {
			if err := sleepCtx(ctx, remaining); err != nil {
				return errFactory.Wrap(ErrCanceled, err)
			}
			return nil
		}

		if err := sleepCtx(ctx, interval); err != nil {
			return errFactory.Wrap(ErrCanceled, err)
		}
		if err := p.record(ctx, phase); err != nil {
			return err
		}
	}

	return nil
}

// record collects one sample and appends it to the log. Measurement
// failures are absorbed: the affected fields stay invalid and the run
// continues. Only recorder write failures are fatal.
func (p *Profiler) record(ctx context.Context, phase Phase) error {
	errFactory := errors.New()

	sample := p.collect(ctx, phase)
	if err := p.recorder.WriteSample(sample); err != nil {
		return errFactory.Wrap(ErrRecord, err)
	}

	return nil
}

func (p *Profiler) collect(ctx context.Context, phase Phase) *Sample {
	sample := &Sample{
		Phase:     phase,
		Timestamp: time.Now(),
	}

	if total, perCPU, err := p.inspector.CPULoad(ctx); err != nil {
		logger.Warn().Err(err).Str("phase", string(phase)).Msg("CPU load unavailable")
	} else {
		sample.CPULoad = NewMeasurement(total)
		sample.PerCPULoad = perCPU
	}

	if m, err := p.inspector.Memory(ctx); err != nil {
		logger.Warn().Err(err).Str("phase", string(phase)).Msg("Memory usage unavailable")
	} else {
		sample.MemoryUsed = NewMeasurement(float64(m.Used))
		sample.MemoryPercent = NewMeasurement(m.UsedPercent)
	}

	if reading, err := p.prober.Probe(ctx); err != nil {
		logger.Warn().Err(err).Str("phase", string(phase)).Msg("Thermal reading unavailable")
	} else {
		if reading.TempValid {
			sample.Temperature = NewMeasurement(reading.TemperatureC)
		}
		if reading.FanValid {
			sample.FanRPM = NewMeasurement(reading.FanRPM)
		}
	}

	return sample
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
