package logfile

import "codeberg.org/kawashima/loadlog/internal/errors"

const (
	ErrCreateFailed = errors.ErrorCode("logfile_create_failed")
	ErrWriteFailed  = errors.ErrorCode("logfile_write_failed")
)
