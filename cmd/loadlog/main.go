package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/kawashima/loadlog/internal/config"
	"codeberg.org/kawashima/loadlog/internal/errors"
	"codeberg.org/kawashima/loadlog/internal/logfile"
	"codeberg.org/kawashima/loadlog/internal/logger"
	"codeberg.org/kawashima/loadlog/internal/metrics"
	"codeberg.org/kawashima/loadlog/internal/proc"
	"codeberg.org/kawashima/loadlog/internal/profiler"
	"codeberg.org/kawashima/loadlog/internal/sysinfo"
	"codeberg.org/kawashima/loadlog/internal/thermal"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitEnvironment = 3
	exitLaunch      = 4
	exitIO          = 5
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadlog: %v\n", err)
		os.Exit(exitConfig)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if !cfg.Debug && !cfg.Verbose {
		logger.SetLevelByName(cfg.LogLevel)
	}
	logger.Debug().Msg("Config loaded")

	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	prober, err := thermal.New()
	if err != nil {
		logger.Error().Err(err).Msg("Thermal query tool unavailable (is istats installed?)")
		return exitEnvironment
	}

	logPath := cfg.ResolveLogFile(time.Now())
	writer, err := logfile.Create(logPath)
	if err != nil {
		logger.Error().Err(err).Str("path", logPath).Msg("Failed to create log file")
		return exitIO
	}

	collector, err := metrics.NewService(metrics.Config{
		DBPath:  cfg.Database,
		Enabled: cfg.Database != "",
	})
	if err != nil {
		writer.Close()
		logger.Error().Err(err).Msg("Failed to initialize sample store")
		return exitIO
	}

	recorder := &teeRecorder{ctx: ctx, writer: writer, collector: collector}
	prof := profiler.New(sysinfo.New(), prober, proc.NewLauncher(), recorder)

	status, runErr := prof.Run(ctx, profiler.RunContext{
		Command:  cfg.Command,
		Computer: cfg.Computer,
		Interval: cfg.IntervalDuration(),
		PreWait:  cfg.PreWaitDuration(),
		PostWait: cfg.PostWaitDuration(),
	})

	if err := writer.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close log file")
		if runErr == nil {
			runErr = err
		}
	}
	if err := collector.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close sample store")
	}

	if runErr != nil {
		logger.Error().Err(runErr).Str("logfile", logPath).Msg("Profiling run failed")
		return exitCodeFor(runErr)
	}

	// Final report
	event := logger.Info().
		Str("command", cfg.Command).
		Str("logfile", logPath).
		Int("exit_code", status.Code)
	if status.Signal != "" {
		event.Str("signal", status.Signal)
	}
	event.Msg("Profiling run complete")

	return exitOK
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func exitCodeFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrInvalidConfig, errors.ErrMissingCommand,
		errors.ErrInvalidInterval, errors.ErrInvalidWait:
		return exitConfig
	case profiler.ErrEnvironment:
		return exitEnvironment
	case profiler.ErrLaunch:
		return exitLaunch
	case profiler.ErrRecord, logfile.ErrCreateFailed, logfile.ErrWriteFailed:
		return exitIO
	default:
		return exitFailure
	}
}

// teeRecorder writes every record to the text log and mirrors it to
// the sample store. Only text log failures abort the run; the store is
// best-effort.
type teeRecorder struct {
	ctx       context.Context
	writer    *logfile.Writer
	collector metrics.Collector
}

func (t *teeRecorder) WriteHeader(hdr *profiler.Header) error {
	if err := t.writer.WriteHeader(hdr); err != nil {
		return err
	}
	if err := t.collector.RecordRun(t.ctx, hdr); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run in sample store")
	}

	return nil
}

func (t *teeRecorder) WriteSample(sample *profiler.Sample) error {
	if err := t.writer.WriteSample(sample); err != nil {
		return err
	}
	if err := t.collector.RecordSample(t.ctx, sample); err != nil {
		logger.Warn().Err(err).Msg("Failed to record sample in sample store")
	}

	return nil
}
