// Package proc launches and supervises the profiled child process.
package proc

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"codeberg.org/kawashima/loadlog/internal/errors"
)

// ExitStatus describes how the child process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a signal.
	Code int
	// Signal names the terminating signal, empty otherwise.
	Signal string
}

// Child is a handle to a running child process.
type Child interface {
	// IsAlive reports whether the process has not yet terminated.
	IsAlive() bool
	// Wait blocks until the process terminates and returns its status.
	Wait() (ExitStatus, error)
	// Terminate kills the process. Safe to call after exit.
	Terminate() error
}

// Launcher spawns child processes from an opaque command string.
type Launcher interface {
	Spawn(command string) (Child, error)
}

type execLauncher struct{}

// NewLauncher returns a Launcher backed by os/exec. The command string
// is split on whitespace; no shell interpretation is performed, so a
// missing binary is detected at spawn time rather than as a shell exit
// code.
func NewLauncher() Launcher {
	return &execLauncher{}
}

func (*execLauncher) Spawn(command string) (Child, error) {
	errFactory := errors.New()

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errFactory.New(errors.ErrMissingCommand)
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, errFactory.Wrap(ErrSpawnFailed, err).WithData(fields[0])
	}

	child := &execChild{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go child.reap()

	return child, nil
}

type execChild struct {
	cmd    *exec.Cmd
	done   chan struct{}
	status ExitStatus
	err    error
	once   sync.Once
}

// reap waits for the process so its status is available without
// blocking the sampling loop.
func (c *execChild) reap() {
	err := c.cmd.Wait()
	c.status, c.err = statusFromWait(err)
	close(c.done)
}

func (c *execChild) IsAlive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *execChild) Wait() (ExitStatus, error) {
	<-c.done
	return c.status, c.err
}

func (c *execChild) Terminate() error {
	errFactory := errors.New()

	if !c.IsAlive() {
		return nil
	}

	var err error
	c.once.Do(func() {
		err = c.cmd.Process.Kill()
	})
	if err != nil {
		return errFactory.Wrap(ErrTerminateFailed, err)
	}

	return nil
}

func statusFromWait(err error) (ExitStatus, error) {
	if err == nil {
		return ExitStatus{Code: 0}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status := ExitStatus{Code: exitErr.ExitCode()}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			status.Signal = ws.Signal().String()
		}
		return status, nil
	}

	return ExitStatus{Code: -1}, errors.New().Wrap(ErrWaitFailed, err)
}
