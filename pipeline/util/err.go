package util

import (
	"context"
	"strings"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/pkg/errors"
)

// IsTerminatorErr reports whether err means the run was cancelled or timed
// out. Errors that crossed a process boundary may only carry the message, so
// the string is checked as well.
func IsTerminatorErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pipeline.ErrTimeoutOrCancel) {
		return true
	}
	if strings.Contains(err.Error(), context.Canceled.Error()) ||
		strings.Contains(err.Error(), context.DeadlineExceeded.Error()) ||
		strings.Contains(err.Error(), pipeline.ErrTimeoutOrCancel.Error()) {
		return true
	}
	return false
}

// IsCleanup reports whether err came from a best-effort teardown call.
func IsCleanup(err error) bool {
	return errors.Is(err, pipeline.ErrCleanup)
}

// IsConfiguration reports whether err is a definition or parameter problem.
func IsConfiguration(err error) bool {
	return errors.Is(err, pipeline.ErrConfiguration)
}
