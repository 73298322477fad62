package profiler

import "time"

// Phase identifies which stage of the command's lifecycle a sample was
// taken in.
type Phase string

const (
	PhasePre       Phase = "pre"
	PhaseRunning   Phase = "running"
	PhasePost      Phase = "post"
	PhasePostFinal Phase = "post-final"
)

// Measurement is a single figure with a validity flag. Invalid
// measurements mark readings that could not be collected and are
// written to the log as a sentinel value.
type Measurement struct {
	Value float64
	Valid bool
}

// NewMeasurement returns a valid measurement.
func NewMeasurement(v float64) Measurement {
	return Measurement{Value: v, Valid: true}
}

// Sample is one timestamped observation of system state.
type Sample struct {
	Phase         Phase
	Timestamp     time.Time
	CPULoad       Measurement // aggregate utilization percent
	PerCPULoad    []float64   // per-core percentages, nil when unavailable
	Temperature   Measurement // degrees Celsius
	FanRPM        Measurement
	MemoryUsed    Measurement // bytes
	MemoryPercent Measurement
}

// Header holds the run context and system constants written once at
// the top of the log.
type Header struct {
	Computer      string
	Command       string
	PhysicalCores int
	LogicalCores  int
	TotalMemory   uint64
	Start         time.Time
	PreWait       time.Duration
	Interval      time.Duration
	PostWait      time.Duration
}

// RunContext is the immutable configuration for one profiling
// invocation.
type RunContext struct {
	Command  string
	Computer string
	Interval time.Duration
	PreWait  time.Duration
	PostWait time.Duration
}

// Recorder receives the header and every sample, in order. Write
// failures are fatal to the run.
type Recorder interface {
	WriteHeader(hdr *Header) error
	WriteSample(sample *Sample) error
}
