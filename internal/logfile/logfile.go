// Package logfile writes the profiling log: one header block followed
// by one line per sample, append-only.
package logfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/kawashima/loadlog/internal/errors"
	"codeberg.org/kawashima/loadlog/internal/profiler"
)

const (
	// Sentinel marks a measurement that could not be collected.
	Sentinel = "NA"

	filePerm      = 0o644
	timestampSpec = "2006-01-02T15:04:05.000Z07:00"
)

// Writer is an append-only log file. Records are written straight to
// the file so a partial log survives an aborted run.
type Writer struct {
	file *os.File
	path string
}

// Create opens the log file for appending, creating it if needed.
func Create(path string) (*Writer, error) {
	errFactory := errors.New()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return nil, errFactory.Wrap(ErrCreateFailed, err).WithData(path)
	}

	return &Writer{file: file, path: path}, nil
}

// Path returns the log file location.
func (w *Writer) Path() string {
	return w.path
}

// WriteHeader writes the run context and system constants as "# key :
// value" lines.
func (w *Writer) WriteHeader(hdr *profiler.Header) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# computer : %s\n", hdr.Computer)
	fmt.Fprintf(&b, "# command : %s\n", hdr.Command)
	fmt.Fprintf(&b, "# physical_cores : %d\n", hdr.PhysicalCores)
	fmt.Fprintf(&b, "# logical_cores : %d\n", hdr.LogicalCores)
	fmt.Fprintf(&b, "# total_memory : %d\n", hdr.TotalMemory)
	fmt.Fprintf(&b, "# start : %s\n", hdr.Start.Format(time.RFC3339))
	fmt.Fprintf(&b, "# wait : %d, %d, %d\n",
		int(hdr.PreWait.Seconds()), int(hdr.Interval.Seconds()), int(hdr.PostWait.Seconds()))

	return w.write(b.String())
}

// WriteSample appends one sample as a single line:
//
//	running 2024-03-01T10:00:01.000Z cpu=12.5 percpu=10.0,15.0 temp=58.8 fan=2159 mem_used=8589934592 mem_pct=50.0
func (w *Writer) WriteSample(sample *profiler.Sample) error {
	fields := []string{
		string(sample.Phase),
		sample.Timestamp.Format(timestampSpec),
		"cpu=" + formatMeasurement(sample.CPULoad, 1),
		"percpu=" + formatPerCPU(sample.PerCPULoad),
		"temp=" + formatMeasurement(sample.Temperature, 1),
		"fan=" + formatMeasurement(sample.FanRPM, 0),
		"mem_used=" + formatMeasurement(sample.MemoryUsed, 0),
		"mem_pct=" + formatMeasurement(sample.MemoryPercent, 1),
	}

	return w.write(strings.Join(fields, " ") + "\n")
}

// Close flushes and closes the log file.
func (w *Writer) Close() error {
	errFactory := errors.New()

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := w.file.Close(); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

func (w *Writer) write(s string) error {
	if _, err := w.file.WriteString(s); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err).WithData(w.path)
	}

	return nil
}

func formatMeasurement(m profiler.Measurement, decimals int) string {
	if !m.Valid {
		return Sentinel
	}

	return strconv.FormatFloat(m.Value, 'f', decimals, 64)
}

func formatPerCPU(perCPU []float64) string {
	if len(perCPU) == 0 {
		return Sentinel
	}

	parts := make([]string, len(perCPU))
	for i, v := range perCPU {
		parts[i] = strconv.FormatFloat(v, 'f', 1, 64)
	}

	return strings.Join(parts, ",")
}
