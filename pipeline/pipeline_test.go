package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorseIsWorstWins(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{StatusSuccess, StatusSuccess, StatusSuccess},
		{StatusSuccess, StatusUnstable, StatusUnstable},
		{StatusUnstable, StatusSuccess, StatusUnstable},
		{StatusUnstable, StatusFailure, StatusFailure},
		{StatusFailure, StatusUnstable, StatusFailure},
		{StatusFailure, StatusSuccess, StatusFailure},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Worse(c.a, c.b), "Worse(%s, %s)", c.a, c.b)
	}
}

func TestRunIDContextRoundTrip(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-1")
	require.Equal(t, "run-1", RunIDFromContext(ctx))
	require.Equal(t, "", RunIDFromContext(context.Background()))
}

func TestRunFailureMessage(t *testing.T) {
	run := &Run{Results: []StageResult{
		{StageID: "build", Status: StageStatusSuccess},
		{StageID: "scan", Status: StageStatusFailure, Message: "scanner exited 2"},
		{StageID: "push", Status: StageStatusSkipped},
	}}
	require.Equal(t, "scanner exited 2", run.FailureMessage())
	require.False(t, run.OnlySkipped())

	skipped := &Run{Results: []StageResult{{StageID: "push", Status: StageStatusSkipped}}}
	require.True(t, skipped.OnlySkipped())
}
