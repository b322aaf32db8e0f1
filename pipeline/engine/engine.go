// Package engine executes a pipeline definition: it validates parameters,
// computes the environment partition, walks the stage graph in declared
// order with parallel fan-out/fan-in segments, applies per-stage failure
// policies, and finalizes the run exactly once.
package engine

import (
	"context"
	"sort"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/collab"
	"github.com/conveyorci/conveyor/pipeline/config"
	"github.com/conveyorci/conveyor/pipeline/state"
	"github.com/conveyorci/conveyor/pipeline/tmpl"
	"github.com/conveyorci/conveyor/pipeline/util"
)

// DefaultTimeout bounds a run when the definition declares none.
const DefaultTimeout = 900 * time.Second

// Executor runs pipeline definitions.
type Executor struct {
	adapter  pipeline.Adapter
	notifier pipeline.Notifier
	collabs  *collab.Set
}

// New wires an executor. A nil notifier disables dispatch; a nil collab set
// leaves call targets unresolvable.
func New(adapter pipeline.Adapter, notifier pipeline.Notifier, collabs *collab.Set) *Executor {
	if collabs == nil {
		collabs = &collab.Set{}
	}
	return &Executor{adapter: adapter, notifier: notifier, collabs: collabs}
}

// Run executes the definition with the given parameter overrides. A
// configuration error returns (nil, err) before any stage executes; once
// stages run, failures are reported through the returned Run, not the error.
func (e *Executor) Run(ctx context.Context, def config.Definition, overrides map[string]string) (*pipeline.Run, error) {
	if err := config.Validate(def); err != nil {
		return nil, err
	}
	params, err := config.ApplyParams(def, overrides)
	if err != nil {
		return nil, err
	}

	run := &pipeline.Run{
		ID:        uuid.NewString(),
		Overall:   pipeline.StatusRunning,
		StartTime: time.Now(),
	}
	ctx = pipeline.ContextWithRunID(ctx, run.ID)
	timeout := DefaultTimeout
	if def.Config.Timeout > 0 {
		timeout = time.Duration(def.Config.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	st := state.New(params)
	fn := tmpl.FuncMap(st, def.Config.Tolerated)
	if err := e.computeEnv(ctx, def, st, fn); err != nil {
		return nil, err
	}
	st.Seal()

	util.SystemLog(ctx, "pipeline %s started as run %s", def.ID, run.ID)
	aborting := false
	for _, seg := range segments(def.Stages) {
		if seg.group != "" {
			e.runGroupSegment(ctx, def, seg.stages, st, fn, run, &aborting)
			continue
		}
		for _, sdef := range seg.stages {
			if aborting && !sdef.AlwaysRun {
				run.Results = append(run.Results, pipeline.StageResult{
					StageID: sdef.ID,
					Status:  pipeline.StageStatusSkipped,
				})
				continue
			}
			stageCtx := ctx
			if aborting {
				// cleanup and notify stages still run after an abort, even
				// when the run context is already dead
				var cleanupCancel context.CancelFunc
				stageCtx, cleanupCancel = detachedContext(run.ID)
				defer cleanupCancel()
			}
			result, buf := e.runStage(stageCtx, stageCtx, def, sdef, st, fn)
			if result.Status == pipeline.StageStatusSuccess {
				if err := buf.Commit(); err != nil {
					result = failureResult(sdef, result, err)
				}
			}
			run.Results = append(run.Results, result)
			e.applyPolicy(ctx, run, sdef, result, &aborting)
		}
	}
	e.finalize(ctx, def, run, st, fn)
	return run, nil
}

// computeEnv fills the environment partition once, before any stage runs.
// Keys are rendered in sorted order for determinism.
func (e *Executor) computeEnv(ctx context.Context, def config.Definition, st *state.State, fn template.FuncMap) error {
	keys := []string{}
	for k := range def.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		value, err := tmpl.Parse(ctx, def.Env[k], st.Data(), fn)
		if err != nil {
			return err
		}
		if err := st.SetEnv(k, value); err != nil {
			return err
		}
	}
	return nil
}

// applyPolicy folds one stage result into the overall status and decides
// whether the run aborts.
func (e *Executor) applyPolicy(ctx context.Context, run *pipeline.Run, sdef config.Stage, result pipeline.StageResult, aborting *bool) {
	switch result.Status {
	case pipeline.StageStatusFailure:
		if pipeline.FailurePolicy(sdef.FailurePolicy) == pipeline.FailureIgnored {
			util.SystemLog(ctx, "stage %s failed but is ignored: %s", sdef.ID, result.Message)
			return
		}
		run.Overall = pipeline.Worse(run.Overall, pipeline.StatusFailure)
		if !*aborting {
			util.SystemLog(ctx, "stage %s failed fatally, run is %s", sdef.ID, pipeline.StatusAborting)
		}
		*aborting = true
	case pipeline.StageStatusUnstable:
		util.SystemLog(ctx, "stage %s failed, run downgraded to unstable: %s", sdef.ID, result.Message)
		run.Overall = pipeline.Worse(run.Overall, pipeline.StatusUnstable)
	}
}

// finalize computes the terminal status, snapshots state, dispatches the
// notification at most once, and fires the downstream trigger on SUCCESS.
func (e *Executor) finalize(ctx context.Context, def config.Definition, run *pipeline.Run, st *state.State, fn template.FuncMap) {
	run.EndTime = time.Now()
	run.Snapshot = st.Snapshot()
	if run.Overall == pipeline.StatusRunning {
		run.Overall = pipeline.StatusSuccess
	}
	util.SystemLog(ctx, "run %s finished: %s", run.ID, run.Overall)

	notifyCtx, cancel := detachedContext(run.ID)
	defer cancel()
	if e.notifier != nil && len(run.Results) > 0 && !run.OnlySkipped() {
		if err := e.notifier.Notify(notifyCtx, run); err != nil {
			util.SystemErrLog(notifyCtx, "notification failed: %s", err)
		}
	}
	if run.Overall == pipeline.StatusSuccess && def.Config.Trigger != nil && e.collabs.Trigger != nil {
		params := map[string]string{}
		for k, v := range def.Config.Trigger.Params {
			rendered, err := tmpl.Parse(notifyCtx, v, st.Data(), fn)
			if err != nil {
				util.SystemErrLog(notifyCtx, "trigger parameter %s: %s", k, err)
				return
			}
			params[k] = rendered
		}
		accepted, err := e.collabs.Trigger.TriggerJob(notifyCtx, def.Config.Trigger.Job, params)
		if err != nil {
			util.SystemErrLog(notifyCtx, "downstream trigger %s: %s", def.Config.Trigger.Job, err)
			return
		}
		util.SystemLog(notifyCtx, "downstream job %s accepted=%v", def.Config.Trigger.Job, accepted)
	}
}

// detachedContext survives the run context so cleanup and notification can
// finish after a timeout-triggered abort.
func detachedContext(runID string) (context.Context, context.CancelFunc) {
	ctx := pipeline.ContextWithRunID(context.Background(), runID)
	return context.WithTimeout(ctx, 5*time.Minute)
}

type segment struct {
	group  string
	stages []config.Stage
}

// segments splits the declared sequence into sequential runs and parallel
// groups. Group members are adjacent (validated by config).
func segments(stages []config.Stage) []segment {
	result := []segment{}
	for _, s := range stages {
		n := len(result)
		if n > 0 && result[n-1].group == s.Group {
			result[n-1].stages = append(result[n-1].stages, s)
			continue
		}
		result = append(result, segment{group: s.Group, stages: []config.Stage{s}})
	}
	return result
}
