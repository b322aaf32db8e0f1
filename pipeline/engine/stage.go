package engine

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/adapter"
	"github.com/conveyorci/conveyor/pipeline/config"
	"github.com/conveyorci/conveyor/pipeline/retry"
	"github.com/conveyorci/conveyor/pipeline/state"
	"github.com/conveyorci/conveyor/pipeline/tmpl"
	"github.com/conveyorci/conveyor/pipeline/util"
)

// PathCall marks a declared output that is filled by a collaborator call
// instead of extracted from the last shell result.
const PathCall = "call"

// runStage executes one stage body, retry included, and returns the result
// together with its uncommitted output buffer. The caller decides when the
// buffer commits: immediately for a sequential stage, at fan-in for a group
// member. retryCtx gates only the inter-attempt sleep; a group may cancel it
// without killing an in-flight tool invocation.
func (e *Executor) runStage(ctx, retryCtx context.Context, def config.Definition, sdef config.Stage, st *state.State, fn template.FuncMap) (pipeline.StageResult, *state.Buffer) {
	started := time.Now()
	result := pipeline.StageResult{StageID: sdef.ID, Status: pipeline.StageStatusPending}
	buf := st.NewBuffer(sdef.ID)

	proceed, err := tmpl.Predicate(ctx, sdef.When, st.Data(), fn)
	if err != nil {
		return failStage(ctx, sdef, result, started, err), buf
	}
	if !proceed {
		util.SystemLog(ctx, "stage %s skipped by run condition", sdef.ID)
		result.Status = pipeline.StageStatusSkipped
		return result, buf
	}

	result.Status = pipeline.StageStatusRunning
	util.SystemLog(ctx, "stage %s %s", sdef.ID, result.Status)
	body := func(ctx context.Context) error {
		// each attempt starts from a clean output buffer
		buf.Discard()
		return e.runBody(ctx, def, sdef, st, fn, buf, &result)
	}
	var bodyErr error
	if sdef.Retry.Attempts > 1 {
		// the attempt itself runs on the stage context so that a group
		// cancel stops re-attempts without interrupting a running tool
		bodyErr = retry.Do(retryCtx, func(context.Context) error {
			return body(ctx)
		}, sdef.Retry.Attempts, time.Duration(sdef.Retry.Delay)*time.Second)
	} else {
		bodyErr = body(ctx)
	}
	if bodyErr != nil {
		return failStage(ctx, sdef, result, started, bodyErr), buf
	}
	result.Status = pipeline.StageStatusSuccess
	result.DurationMs = time.Since(started).Milliseconds()
	result.Outputs = util.Merge(buf.Pending())
	util.SystemLog(ctx, "stage %s succeeded in %dms", sdef.ID, result.DurationMs)
	return result, buf
}

// failStage maps a stage body failure to the stage status its failure policy
// dictates. FATAL and IGNORED both record FAILURE; the run-level consequence
// differs and is applied by the caller.
func failStage(ctx context.Context, sdef config.Stage, result pipeline.StageResult, started time.Time, err error) pipeline.StageResult {
	result.DurationMs = time.Since(started).Milliseconds()
	result.Message = err.Error()
	if pipeline.FailurePolicy(sdef.FailurePolicy) == pipeline.FailureUnstable {
		result.Status = pipeline.StageStatusUnstable
	} else {
		result.Status = pipeline.StageStatusFailure
	}
	util.SystemErrLog(ctx, "stage %s failed: %s", sdef.ID, err)
	return result
}

// runBody runs the steps in order and stages the declared outputs into buf.
// The first failing step ends the body.
func (e *Executor) runBody(ctx context.Context, def config.Definition, sdef config.Stage, st *state.State, fn template.FuncMap, buf *state.Buffer, result *pipeline.StageResult) error {
	var last pipeline.Result
	haveShell := false
	callOutputs := map[string]string{}
	for _, step := range sdef.Steps {
		if step.Call != nil {
			produced, err := e.runCall(ctx, step, st, fn)
			if err != nil {
				if util.IsCleanup(err) {
					// teardown calls are best-effort: log, run the
					// remaining steps, keep the stage green
					util.SystemErrLog(ctx, "step %q cleanup failed: %s", step.Name, err)
					continue
				}
				return err
			}
			callOutputs = util.Merge(callOutputs, produced)
			continue
		}
		invoked, err := e.runShell(ctx, def, step, st, fn)
		if err != nil {
			return err
		}
		last = invoked
		haveShell = true
		result.ExitCode = exitCodeOf(invoked.ExitCode)
		if invoked.ExitCode != 0 {
			return errors.Wrapf(pipeline.ErrToolFailure, "step %q exited %d: %s", step.Name, invoked.ExitCode, tail(invoked.Stderr))
		}
	}

	fromResult := map[string]string{}
	for key, path := range sdef.Outputs {
		if path == PathCall {
			if !util.IsExist(callOutputs, key) {
				return errors.Wrapf(pipeline.ErrToolFailure, "stage %q declares output %q but no call produced it", sdef.ID, key)
			}
			buf.Set(key, util.GetV(callOutputs, key, ""))
			continue
		}
		fromResult[key] = path
	}
	if len(fromResult) > 0 {
		if !haveShell {
			return errors.Wrapf(pipeline.ErrConfiguration, "stage %q extracts outputs but runs no shell step", sdef.ID)
		}
		produced, err := adapter.Extract(last, fromResult)
		if err != nil {
			return err
		}
		for key, value := range produced {
			buf.Set(key, value)
		}
	}
	return nil
}

// runShell renders and invokes one shell step through the adapter.
func (e *Executor) runShell(ctx context.Context, def config.Definition, step config.Step, st *state.State, fn template.FuncMap) (pipeline.Result, error) {
	script, err := tmpl.Parse(ctx, strings.Join(step.Shell, "\n"), st.Data(), fn)
	if err != nil {
		return pipeline.Result{}, err
	}
	env := map[string]string{}
	for key, value := range step.Env {
		rendered, err := tmpl.Parse(ctx, value, st.Data(), fn)
		if err != nil {
			return pipeline.Result{}, err
		}
		env[key] = rendered
	}
	return e.adapter.Invoke(ctx, pipeline.Command{
		Script:  script,
		Env:     env,
		WorkDir: def.Config.WorkDir,
		Timeout: time.Duration(step.Timeout) * time.Second,
	})
}

// runCall renders the call arguments and dispatches to the resolved
// collaborator operation.
func (e *Executor) runCall(ctx context.Context, step config.Step, st *state.State, fn template.FuncMap) (map[string]string, error) {
	callFn, err := e.collabs.Resolve(step.Call.Target)
	if err != nil {
		return nil, err
	}
	rendered, err := tmpl.ParseObject(ctx, step.Call.Args, st.Data(), fn)
	if err != nil {
		return nil, err
	}
	args := map[string]string{}
	for key, value := range rendered {
		args[key] = cast.ToString(value)
	}
	return callFn(ctx, args)
}

// failureResult rewrites an otherwise successful stage result after a late
// failure, e.g. an output commit conflict.
func failureResult(sdef config.Stage, result pipeline.StageResult, err error) pipeline.StageResult {
	result.Message = err.Error()
	result.Outputs = nil
	if pipeline.FailurePolicy(sdef.FailurePolicy) == pipeline.FailureUnstable {
		result.Status = pipeline.StageStatusUnstable
	} else {
		result.Status = pipeline.StageStatusFailure
	}
	return result
}

func exitCodeOf(code int) *int {
	c := code
	return &c
}

// tail returns the last non-empty line, the part of a tool's stderr worth
// putting in a stage message.
func tail(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(util.LastItem(lines))
}
