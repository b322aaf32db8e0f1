package pipeline

import (
	"context"
)

const (
	StatusRunning  = "RUNNING"
	StatusSuccess  = "SUCCESS"
	StatusUnstable = "UNSTABLE"
	StatusFailure  = "FAILURE"
	StatusAborting = "ABORTING"

	StageStatusPending  = "PENDING"
	StageStatusRunning  = "RUNNING"
	StageStatusSuccess  = "SUCCESS"
	StageStatusFailure  = "FAILURE"
	StageStatusUnstable = "UNSTABLE"
	StageStatusSkipped  = "SKIPPED"
)

// FailurePolicy maps a stage failure to its impact on the run as a whole.
type FailurePolicy string

const (
	//FailureFatal aborts the run; only alwaysRun stages execute afterwards.
	FailureFatal FailurePolicy = "FATAL"
	//FailureUnstable lets the run continue but caps the overall status at UNSTABLE.
	FailureUnstable FailurePolicy = "UNSTABLE"
	//FailureIgnored logs the failure without touching the overall status.
	FailureIgnored FailurePolicy = "IGNORED"
)

var statusRank = map[string]int{
	StatusSuccess:  0,
	StatusUnstable: 1,
	StatusFailure:  2,
}

// Worse returns the worst of two run statuses: FAILURE > UNSTABLE > SUCCESS.
func Worse(a, b string) string {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}

type runIDCtxKey struct{}

// ContextWithRunID attaches the run id for log correlation.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, id)
}

// RunIDFromContext returns the run id or "" when none is attached.
func RunIDFromContext(ctx context.Context) string {
	id, ok := ctx.Value(runIDCtxKey{}).(string)
	if ok {
		return id
	}
	return ""
}
