//go:build !unix && !windows

package control

import apperrors "github.com/agbru/taskmaster/internal/errors"

// No mapping: every class is denied.
var priorityTable = map[PriorityClass]int{}

func setOSPriority(int32, int) error { return apperrors.ErrUnsupported }
