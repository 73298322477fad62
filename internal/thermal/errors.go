package thermal

import "codeberg.org/kawashima/loadlog/internal/errors"

const (
	ErrToolNotFound = errors.ErrorCode("thermal_tool_not_found")
	ErrProbeFailed  = errors.ErrorCode("thermal_probe_failed")
)
