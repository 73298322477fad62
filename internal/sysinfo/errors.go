package sysinfo

import "codeberg.org/kawashima/loadlog/internal/errors"

const (
	ErrCPULoadFailed   = errors.ErrorCode("sysinfo_cpu_load_failed")
	ErrMemoryFailed    = errors.ErrorCode("sysinfo_memory_failed")
	ErrCoreCountFailed = errors.ErrorCode("sysinfo_core_count_failed")
)
