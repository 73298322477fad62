package profiler

import "codeberg.org/kawashima/loadlog/internal/errors"

const (
	ErrInvalidRunContext = errors.ErrInvalidConfig
	ErrEnvironment       = errors.ErrorCode("profiler_environment_unavailable")
	ErrLaunch            = errors.ErrorCode("profiler_launch_failed")
	ErrRecord            = errors.ErrorCode("profiler_record_failed")
	ErrCanceled          = errors.ErrCanceled
)
