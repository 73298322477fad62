package proc

import "codeberg.org/kawashima/loadlog/internal/errors"

const (
	ErrSpawnFailed     = errors.ErrorCode("proc_spawn_failed")
	ErrWaitFailed      = errors.ErrorCode("proc_wait_failed")
	ErrTerminateFailed = errors.ErrorCode("proc_terminate_failed")
)
