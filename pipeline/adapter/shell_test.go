package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestInvokeCapturesResult(t *testing.T) {
	sh := NewShell(t.TempDir())
	res, err := sh.Invoke(context.Background(), pipeline.Command{
		Script: "echo out; echo err 1>&2",
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "out", strings.TrimSpace(res.Stdout))
	require.Equal(t, "err", strings.TrimSpace(res.Stderr))
	require.Greater(t, res.Duration, time.Duration(0))
}

func TestInvokeNonzeroExitIsNotAnError(t *testing.T) {
	sh := NewShell(t.TempDir())
	res, err := sh.Invoke(context.Background(), pipeline.Command{Script: "exit 3"})
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
}

func TestInvokeEnvOverrides(t *testing.T) {
	sh := NewShell(t.TempDir())
	res, err := sh.Invoke(context.Background(), pipeline.Command{
		Script: "printf '%s' \"$IMAGE_REF\"",
		Env:    map[string]string{"IMAGE_REF": "registry.local/app:1"},
	})
	require.NoError(t, err)
	require.Equal(t, "registry.local/app:1", res.Stdout)
}

func TestInvokeTimeout(t *testing.T) {
	sh := NewShell(t.TempDir())
	_, err := sh.Invoke(context.Background(), pipeline.Command{
		Script:  "sleep 5",
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, pipeline.ErrTimeoutOrCancel))
}

func TestExtract(t *testing.T) {
	res := pipeline.Result{
		ExitCode: 1,
		Stdout:   `{"report":{"url":"http://r/7","count":4}}`,
	}
	got, err := Extract(res, map[string]string{
		"report_url": "$.report.url",
		"findings":   "$.report.count",
		"code":       PathExitCode,
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"report_url": "http://r/7",
		"findings":   "4",
		"code":       "1",
	}, got)
}

func TestExtractStdoutPseudoPath(t *testing.T) {
	got, err := Extract(pipeline.Result{Stdout: " abc123 \n"}, map[string]string{"container_id": PathStdout})
	require.NoError(t, err)
	require.Equal(t, "abc123", got["container_id"])
}

func TestExtractErrors(t *testing.T) {
	_, err := Extract(pipeline.Result{Stdout: "not json"}, map[string]string{"x": "$.a"})
	require.True(t, errors.Is(err, pipeline.ErrToolFailure))

	_, err = Extract(pipeline.Result{}, map[string]string{"x": "regex:.*"})
	require.True(t, errors.Is(err, pipeline.ErrConfiguration))
}
