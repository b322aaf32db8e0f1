package tmpl

import (
	"context"
	"testing"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/state"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func testState(t *testing.T) *state.State {
	t.Helper()
	st := state.New(map[string]string{
		"BRANCH":          "main",
		"SEVERITY_FILTER": "LOW,MEDIUM",
	})
	require.NoError(t, st.SetEnv("IMAGE_TAG", "app:main"))
	st.Seal()
	require.NoError(t, st.SetOutput("scan", "scan_status", "1"))
	return st
}

func TestParseStateFuncs(t *testing.T) {
	st := testState(t)
	fn := FuncMap(st, []string{"LOW,MEDIUM"})
	ctx := context.Background()

	got, err := Parse(ctx, `{{ param "BRANCH" }}/{{ env "IMAGE_TAG" }}/{{ output "scan_status" }}`, st.Data(), fn)
	require.NoError(t, err)
	require.Equal(t, "main/app:main/1", got)
}

func TestParsePlainTextPassthrough(t *testing.T) {
	got, err := Parse(context.Background(), "no actions here", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "no actions here", got)
}

func TestParseUndeclaredParam(t *testing.T) {
	st := testState(t)
	fn := FuncMap(st, nil)
	_, err := Parse(context.Background(), `{{ param "NOPE" }}`, st.Data(), fn)
	require.Error(t, err)
	require.True(t, errors.Is(err, pipeline.ErrConfiguration))
}

func TestParseOutputBeforeProducer(t *testing.T) {
	st := state.New(nil)
	st.Seal()
	fn := FuncMap(st, nil)
	_, err := Parse(context.Background(), `{{ output "scan_status" }}`, nil, fn)
	require.Error(t, err)
	require.True(t, errors.Is(err, pipeline.ErrOutputNotReady))
}

func TestPredicate(t *testing.T) {
	st := testState(t)
	fn := FuncMap(st, []string{"LOW,MEDIUM"})
	ctx := context.Background()

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{`{{ eq (param "BRANCH") "main" }}`, true},
		{`{{ eq (param "BRANCH") "dev" }}`, false},
		{`{{ canProceed (output "scan_status") (param "SEVERITY_FILTER") }}`, true},
		{`{{ canProceed (output "scan_status") "CRITICAL" }}`, false},
	}
	for _, tt := range tests {
		got, err := Predicate(ctx, tt.expr, st.Data(), fn)
		require.NoError(t, err, tt.expr)
		require.Equal(t, tt.want, got, tt.expr)
	}
}

func TestJSONPathFunc(t *testing.T) {
	st := testState(t)
	fn := FuncMap(st, nil)
	got, err := Parse(context.Background(), `{{ jsonPath "{\"report\":{\"url\":\"http://r/1\"}}" "$.report.url" }}`, st.Data(), fn)
	require.NoError(t, err)
	require.Equal(t, "http://r/1", got)
}

func TestParseObject(t *testing.T) {
	type callArgs struct {
		Image string `json:"image"`
		Count int    `json:"count"`
	}
	st := testState(t)
	fn := FuncMap(st, nil)
	in := callArgs{Image: `{{ env "IMAGE_TAG" }}`, Count: 3}
	out, err := ParseObject(context.Background(), in, st.Data(), fn)
	require.NoError(t, err)
	require.Equal(t, "app:main", out.Image)
	require.Equal(t, 3, out.Count)
}

func TestReferences(t *testing.T) {
	refs := References(`{{ canProceed (output "scan_status") (param "SEVERITY_FILTER") }} {{ env "IMAGE_TAG" }}`)
	require.Equal(t, []Ref{
		{Kind: "output", Key: "scan_status"},
		{Kind: "param", Key: "SEVERITY_FILTER"},
		{Kind: "env", Key: "IMAGE_TAG"},
	}, refs)
}
