package profiler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/kawashima/loadlog/internal/errors"
	"codeberg.org/kawashima/loadlog/internal/proc"
	"codeberg.org/kawashima/loadlog/internal/profiler"
	"codeberg.org/kawashima/loadlog/internal/sysinfo"
	"codeberg.org/kawashima/loadlog/internal/thermal"
)

// Fakes

type fakeInspector struct {
	failCPU    bool
	failMemory bool
}

func (f *fakeInspector) CPULoad(context.Context) (float64, []float64, error) {
	if f.failCPU {
		return 0, nil, errors.New().New(sysinfo.ErrCPULoadFailed)
	}
	return 12.5, []float64{10, 15}, nil
}

func (f *fakeInspector) Memory(context.Context) (sysinfo.Memory, error) {
	if f.failMemory {
		return sysinfo.Memory{}, errors.New().New(sysinfo.ErrMemoryFailed)
	}
	return sysinfo.Memory{Used: 8 << 30, Total: 16 << 30, UsedPercent: 50}, nil
}

func (f *fakeInspector) Constants(context.Context) (sysinfo.Constants, error) {
	return sysinfo.Constants{PhysicalCores: 4, LogicalCores: 8, TotalMemory: 16 << 30}, nil
}

type failingInspector struct{ fakeInspector }

func (*failingInspector) Constants(context.Context) (sysinfo.Constants, error) {
	return sysinfo.Constants{}, errors.New().New(sysinfo.ErrCoreCountFailed)
}

type fakeProber struct {
	fail bool
}

func (f *fakeProber) Probe(context.Context) (thermal.Reading, error) {
	if f.fail {
		return thermal.Reading{}, errors.New().New(thermal.ErrProbeFailed)
	}
	return thermal.Reading{TemperatureC: 58.75, TempValid: true, FanRPM: 2159, FanValid: true}, nil
}

type fakeChild struct {
	mu       sync.Mutex
	deadline time.Time
	killed   bool
	status   proc.ExitStatus
}

func (c *fakeChild) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.killed && time.Now().Before(c.deadline)
}

func (c *fakeChild) Wait() (proc.ExitStatus, error) {
	for c.IsAlive() {
		time.Sleep(time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.killed {
		return proc.ExitStatus{Code: -1, Signal: "killed"}, nil
	}
	return c.status, nil
}

func (c *fakeChild) Terminate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killed = true
	return nil
}

type fakeLauncher struct {
	lifetime time.Duration
	exit     proc.ExitStatus
	spawnErr error
	child    *fakeChild
}

func (l *fakeLauncher) Spawn(string) (proc.Child, error) {
	if l.spawnErr != nil {
		return nil, l.spawnErr
	}
	l.child = &fakeChild{deadline: time.Now().Add(l.lifetime), status: l.exit}
	return l.child, nil
}

type captureRecorder struct {
	header   *profiler.Header
	samples  []profiler.Sample
	failFrom int // fail writes once this many samples were taken; 0 disables
}

func (r *captureRecorder) WriteHeader(hdr *profiler.Header) error {
	r.header = hdr
	return nil
}

func (r *captureRecorder) WriteSample(sample *profiler.Sample) error {
	if r.failFrom > 0 && len(r.samples) >= r.failFrom {
		return errors.New().New(errors.ErrOperationFailed)
	}
	r.samples = append(r.samples, *sample)
	return nil
}

func (r *captureRecorder) byPhase(phase profiler.Phase) []profiler.Sample {
	var out []profiler.Sample
	for _, s := range r.samples {
		if s.Phase == phase {
			out = append(out, s)
		}
	}
	return out
}

func newProfiler(launcher proc.Launcher, recorder profiler.Recorder) *profiler.Profiler {
	return profiler.New(&fakeInspector{}, &fakeProber{}, launcher, recorder)
}

// Tests

func TestRunCompleteCycle(t *testing.T) {
	launcher := &fakeLauncher{lifetime: 120 * time.Millisecond}
	recorder := &captureRecorder{}
	p := newProfiler(launcher, recorder)

	rc := profiler.RunContext{
		Command:  "sleep 2",
		Computer: "testbox",
		Interval: 50 * time.Millisecond,
		PreWait:  50 * time.Millisecond,
		PostWait: 50 * time.Millisecond,
	}

	status, err := p.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Code)

	require.NotNil(t, recorder.header)
	assert.Equal(t, "testbox", recorder.header.Computer)
	assert.Equal(t, "sleep 2", recorder.header.Command)
	assert.Equal(t, 4, recorder.header.PhysicalCores)
	assert.Equal(t, 8, recorder.header.LogicalCores)

	// Interval == wait: the waits contribute no extra samples
	assert.Len(t, recorder.byPhase(profiler.PhasePre), 1, "Expected only the baseline pre sample")
	assert.Len(t, recorder.byPhase(profiler.PhasePost), 1, "Expected only the immediate post sample")
	assert.Len(t, recorder.byPhase(profiler.PhasePostFinal), 1)

	// floor(120ms / 50ms) = 2, plus at most one for poll latency
	running := len(recorder.byPhase(profiler.PhaseRunning))
	assert.GreaterOrEqual(t, running, 2)
	assert.LessOrEqual(t, running, 3)

	// Record order: phases in lifecycle order, timestamps non-decreasing
	for i := 1; i < len(recorder.samples); i++ {
		assert.False(t, recorder.samples[i].Timestamp.Before(recorder.samples[i-1].Timestamp),
			"Expected non-decreasing timestamps")
	}
	assert.Equal(t, profiler.PhasePre, recorder.samples[0].Phase)
	assert.Equal(t, profiler.PhasePostFinal, recorder.samples[len(recorder.samples)-1].Phase)
}

func TestRunImmediateChildExit(t *testing.T) {
	launcher := &fakeLauncher{lifetime: 0, exit: proc.ExitStatus{Code: 1}}
	recorder := &captureRecorder{}
	p := newProfiler(launcher, recorder)

	rc := profiler.RunContext{
		Command:  "false",
		Computer: "testbox",
		Interval: 20 * time.Millisecond,
	}

	status, err := p.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Code, "Expected the child's exit code to be reported")

	assert.Len(t, recorder.byPhase(profiler.PhasePre), 1)
	assert.LessOrEqual(t, len(recorder.byPhase(profiler.PhaseRunning)), 1)
	assert.Len(t, recorder.byPhase(profiler.PhasePost), 1)
	assert.Len(t, recorder.byPhase(profiler.PhasePostFinal), 1)
}

func TestRunLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{spawnErr: errors.New().New(proc.ErrSpawnFailed)}
	recorder := &captureRecorder{}
	p := newProfiler(launcher, recorder)

	rc := profiler.RunContext{
		Command:  "nonexistent-binary-xyz",
		Computer: "testbox",
		Interval: 20 * time.Millisecond,
	}

	_, err := p.Run(context.Background(), rc)
	require.Error(t, err)
	assert.Equal(t, profiler.ErrLaunch, errors.CodeOf(err))

	// Header and pre-run baseline are still flushed: the partial log
	// is a legitimate diagnostic artifact
	require.NotNil(t, recorder.header)
	require.Len(t, recorder.samples, 1)
	assert.Equal(t, profiler.PhasePre, recorder.samples[0].Phase)
}

func TestRunEnvironmentFailure(t *testing.T) {
	p := profiler.New(&failingInspector{}, &fakeProber{}, &fakeLauncher{}, &captureRecorder{})

	_, err := p.Run(context.Background(), profiler.RunContext{
		Command:  "true",
		Interval: 20 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, profiler.ErrEnvironment, errors.CodeOf(err))
}

func TestSampleFailuresAreNonFatal(t *testing.T) {
	launcher := &fakeLauncher{lifetime: 50 * time.Millisecond}
	recorder := &captureRecorder{}
	p := profiler.New(&fakeInspector{failCPU: true}, &fakeProber{fail: true}, launcher, recorder)

	rc := profiler.RunContext{
		Command:  "sleep 1",
		Computer: "testbox",
		Interval: 20 * time.Millisecond,
	}

	_, err := p.Run(context.Background(), rc)
	require.NoError(t, err, "A failed measurement must never abort the run")

	require.NotEmpty(t, recorder.samples)
	for _, s := range recorder.samples {
		assert.False(t, s.CPULoad.Valid, "CPU load should carry the missing marker")
		assert.False(t, s.Temperature.Valid)
		assert.False(t, s.FanRPM.Valid)
		// Unaffected fields stay populated
		assert.True(t, s.MemoryUsed.Valid)
		assert.True(t, s.MemoryPercent.Valid)
	}
}

func TestPreWaitSampling(t *testing.T) {
	launcher := &fakeLauncher{lifetime: 0}
	recorder := &captureRecorder{}
	p := newProfiler(launcher, recorder)

	rc := profiler.RunContext{
		Command:  "true",
		Computer: "testbox",
		Interval: 50 * time.Millisecond,
		PreWait:  120 * time.Millisecond,
	}

	_, err := p.Run(context.Background(), rc)
	require.NoError(t, err)

	// Baseline plus one sample per full interval inside the wait
	assert.Len(t, recorder.byPhase(profiler.PhasePre), 3)
}

func TestPreWaitShorterThanInterval(t *testing.T) {
	launcher := &fakeLauncher{lifetime: 0}
	recorder := &captureRecorder{}
	p := newProfiler(launcher, recorder)

	rc := profiler.RunContext{
		Command:  "true",
		Computer: "testbox",
		Interval: 200 * time.Millisecond,
		PreWait:  50 * time.Millisecond,
	}

	start := time.Now()
	_, err := p.Run(context.Background(), rc)
	require.NoError(t, err)

	assert.Len(t, recorder.byPhase(profiler.PhasePre), 1,
		"No extra pre samples when the interval exceeds the wait")
	assert.Less(t, time.Since(start), 2*rc.Interval+rc.PreWait,
		"The pre wait must not stretch to a full interval")
}

func TestRecorderFailureTerminatesChild(t *testing.T) {
	launcher := &fakeLauncher{lifetime: 10 * time.Second}
	recorder := &captureRecorder{failFrom: 2} // baseline plus one running sample
	p := newProfiler(launcher, recorder)

	rc := profiler.RunContext{
		Command:  "sleep 600",
		Computer: "testbox",
		Interval: 20 * time.Millisecond,
	}

	_, err := p.Run(context.Background(), rc)
	require.Error(t, err)
	assert.Equal(t, profiler.ErrRecord, errors.CodeOf(err))

	require.NotNil(t, launcher.child)
	assert.False(t, launcher.child.IsAlive(), "The child must be reaped before surfacing the error")
}

func TestCancellationTerminatesChild(t *testing.T) {
	launcher := &fakeLauncher{lifetime: 10 * time.Second}
	recorder := &captureRecorder{}
	p := newProfiler(launcher, recorder)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	rc := profiler.RunContext{
		Command:  "sleep 600",
		Computer: "testbox",
		Interval: 20 * time.Millisecond,
	}

	_, err := p.Run(ctx, rc)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCanceled, errors.CodeOf(err))

	require.NotNil(t, launcher.child)
	assert.False(t, launcher.child.IsAlive(), "Cancellation must not leak the child process")
}

func TestRunContextValidation(t *testing.T) {
	p := newProfiler(&fakeLauncher{}, &captureRecorder{})

	_, err := p.Run(context.Background(), profiler.RunContext{Interval: time.Second})
	require.Error(t, err)
	assert.Equal(t, errors.ErrMissingCommand, errors.CodeOf(err))

	_, err = p.Run(context.Background(), profiler.RunContext{Command: "true"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInterval, errors.CodeOf(err))

	_, err = p.Run(context.Background(), profiler.RunContext{
		Command: "true", Interval: time.Second, PreWait: -time.Second,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidWait, errors.CodeOf(err))
}
