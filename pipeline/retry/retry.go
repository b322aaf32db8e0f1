// Package retry wraps flaky collaborator calls in a fixed-interval retry
// loop, mirroring the constant attempt-count-plus-constant-sleep policy the
// pipeline applies to registry pushes and health checks.
package retry

import (
	"context"
	"time"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/util"
)

// Op is one attemptable operation.
type Op func(ctx context.Context) error

// Do invokes op up to maxAttempts times total, sleeping delay between
// attempts. The first success returns immediately; exhausted attempts return
// the last failure. A cancelled context aborts the inter-attempt sleep and
// returns ErrTimeoutOrCancel.
func Do(ctx context.Context, op Op, maxAttempts int, delay time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if util.IsTerminatorErr(lastErr) {
			return lastErr
		}
		if util.IsConfiguration(lastErr) {
			// a definition problem will not heal between attempts
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		util.SystemLog(ctx, "attempt %d/%d failed, retrying in %s: %s", attempt, maxAttempts, delay, lastErr)
		select {
		case <-ctx.Done():
			return pipeline.ErrTimeoutOrCancel
		case <-time.After(delay):
		}
	}
	return lastErr
}
