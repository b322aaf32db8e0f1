package engine

import (
	"context"
	"sync/atomic"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/config"
	"github.com/conveyorci/conveyor/pipeline/state"
	"github.com/conveyorci/conveyor/pipeline/util"
)

// runGroupSegment fans a parallel group out over its members and fans back
// in. Output buffers commit only at fan-in, so siblings and later stages
// never observe partial state. With FailFast set, the group counts as failed
// the moment a member fails fatally; members still in flight run to
// completion but their results are dropped. Without FailFast, every
// successful member keeps its outputs regardless of sibling failures.
func (e *Executor) runGroupSegment(ctx context.Context, def config.Definition, members []config.Stage, st *state.State, fn template.FuncMap, run *pipeline.Run, aborting *bool) {
	if *aborting {
		// alwaysRun stages never join a group, so the whole segment skips
		for _, sdef := range members {
			run.Results = append(run.Results, pipeline.StageResult{
				StageID: sdef.ID,
				Status:  pipeline.StageStatusSkipped,
			})
		}
		return
	}

	util.SystemLog(ctx, "parallel group %s: %d members", members[0].Group, len(members))
	var failed atomic.Bool
	retryCtx := ctx
	stopRetries := func() {}
	if def.Config.FailFast {
		// the first fatal failure stops sibling retry loops at their next
		// sleep; tool invocations already in flight keep the run context
		var cancel context.CancelFunc
		retryCtx, cancel = context.WithCancel(ctx)
		stopRetries = cancel
	}
	defer stopRetries()
	results := make([]pipeline.StageResult, len(members))
	buffers := make([]*state.Buffer, len(members))
	wg := errgroup.Group{}
	for i := range members {
		i := i
		sdef := members[i]
		wg.Go(func() error {
			result, buf := e.runStage(ctx, retryCtx, def, sdef, st, fn)
			switch {
			case result.Status == pipeline.StageStatusFailure &&
				pipeline.FailurePolicy(sdef.FailurePolicy) == pipeline.FailureFatal:
				failed.Store(true)
				stopRetries()
			case result.Status == pipeline.StageStatusSuccess && def.Config.FailFast && failed.Load():
				// straggler: the group already failed, drop its results
				util.SystemLog(ctx, "stage %s finished after group failure, outputs discarded", sdef.ID)
				buf.Discard()
				result.Outputs = nil
			}
			results[i] = result
			buffers[i] = buf
			return nil
		})
	}
	// members report failure through their result, not an error
	_ = wg.Wait()

	for i := range members {
		if results[i].Status == pipeline.StageStatusSuccess {
			if err := buffers[i].Commit(); err != nil {
				results[i] = failureResult(members[i], results[i], err)
			}
		}
		run.Results = append(run.Results, results[i])
		e.applyPolicy(ctx, run, members[i], results[i], aborting)
	}
}
