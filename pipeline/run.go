package pipeline

import (
	"context"
	"time"
)

// StageResult is the immutable record of one stage execution.
type StageResult struct {
	StageID    string
	Status     string
	ExitCode   *int
	DurationMs int64
	Outputs    map[string]string
	Message    string
}

// Run accumulates stage results and is finalized exactly once.
type Run struct {
	ID        string
	Results   []StageResult
	Overall   string
	StartTime time.Time
	EndTime   time.Time
	//Snapshot of the pipeline state at finalize, for the notifier.
	Snapshot map[string]string
}

// Result returns the recorded result for a stage id, if any.
func (r *Run) Result(stageID string) (StageResult, bool) {
	for _, item := range r.Results {
		if item.StageID == stageID {
			return item, true
		}
	}
	return StageResult{}, false
}

// OnlySkipped reports whether every recorded stage was skipped.
func (r *Run) OnlySkipped() bool {
	for _, item := range r.Results {
		if item.Status != StageStatusSkipped {
			return false
		}
	}
	return len(r.Results) > 0
}

// FailureMessage returns the deepest captured error message of the first
// failed stage, or "" when the run has no failure.
func (r *Run) FailureMessage() string {
	for _, item := range r.Results {
		if item.Status == StageStatusFailure && item.Message != "" {
			return item.Message
		}
	}
	return ""
}

// Notifier dispatches the final report once per terminal run state.
type Notifier interface {
	Notify(ctx context.Context, run *Run) error
}
