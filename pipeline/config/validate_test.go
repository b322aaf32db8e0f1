package config

import (
	"testing"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func baseDefinition() Definition {
	return Definition{
		ID: "release",
		Params: []Param{
			{Name: "BRANCH", Type: ParamString, Default: "main"},
			{Name: "SEVERITY_FILTER", Type: ParamChoice, Default: "HIGH,CRITICAL", Choices: []string{"LOW,MEDIUM", "HIGH,CRITICAL"}},
			{Name: "SKIP_TESTS", Type: ParamBool, Default: "false"},
		},
		Env: map[string]string{
			"IMAGE_TAG": `app:{{ param "BRANCH" }}`,
		},
		Stages: []Stage{
			{
				ID:            "scan",
				FailurePolicy: "FATAL",
				Outputs:       map[string]string{"scan_status": "exitcode"},
				Steps:         []Step{{Name: "scan", Shell: []string{"scan-tool"}}},
			},
			{
				ID:            "push",
				When:          `{{ canProceed (output "scan_status") (param "SEVERITY_FILTER") }}`,
				FailurePolicy: "FATAL",
				Needs:         []string{"scan"},
				Steps:         []Step{{Name: "push", Shell: []string{`docker push {{ env "IMAGE_TAG" }}`}}},
			},
		},
	}
}

func TestApplyParams(t *testing.T) {
	def := baseDefinition()

	effective, err := ApplyParams(def, map[string]string{"BRANCH": "dev", "SEVERITY_FILTER": "LOW,MEDIUM"})
	require.NoError(t, err)
	require.Equal(t, "dev", effective["BRANCH"])
	require.Equal(t, "LOW,MEDIUM", effective["SEVERITY_FILTER"])
	require.Equal(t, "false", effective["SKIP_TESTS"], "defaults survive when not overridden")
}

func TestApplyParamsRejects(t *testing.T) {
	def := baseDefinition()
	tests := []struct {
		name      string
		overrides map[string]string
	}{
		{"undeclared parameter", map[string]string{"NOPE": "x"}},
		{"choice violation", map[string]string{"SEVERITY_FILTER": "ALL"}},
		{"boolean violation", map[string]string{"SKIP_TESTS": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyParams(def, tt.overrides)
			require.Error(t, err)
			require.True(t, errors.Is(err, pipeline.ErrConfiguration))
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	require.NoError(t, Validate(baseDefinition()))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"duplicate stage id", func(d *Definition) { d.Stages[1].ID = "scan" }},
		{"stage without steps", func(d *Definition) { d.Stages[0].Steps = nil }},
		{"unknown failure policy", func(d *Definition) { d.Stages[0].FailurePolicy = "MAYBE" }},
		{"needs unknown stage", func(d *Definition) { d.Stages[1].Needs = []string{"missing"} }},
		{"needs later stage", func(d *Definition) { d.Stages[0].Needs = []string{"push"} }},
		{"undeclared param ref", func(d *Definition) { d.Stages[1].When = `{{ param "NOPE" }}` }},
		{"unknown env ref", func(d *Definition) {
			d.Stages[1].Steps[0].Shell = []string{`echo {{ env "NOPE" }}`}
		}},
		{"output read before producer", func(d *Definition) {
			d.Stages[0].When = `{{ output "scan_status" }}`
			d.Stages[0].Outputs = nil
			d.Stages[1].Outputs = map[string]string{"scan_status": "exitcode"}
		}},
		{"output read by parallel sibling", func(d *Definition) {
			d.Stages[0].Group = "g"
			d.Stages[1].Group = "g"
		}},
		{"non-adjacent group", func(d *Definition) {
			d.Stages[0].Group = "g"
			d.Stages[1].Group = ""
			d.Stages = append(d.Stages, Stage{
				ID:            "late",
				Group:         "g",
				FailurePolicy: "FATAL",
				Steps:         []Step{{Name: "x", Shell: []string{"true"}}},
			})
		}},
		{"alwaysRun inside group", func(d *Definition) {
			d.Stages[0].AlwaysRun = true
			d.Stages[0].Group = "g"
		}},
		{"choice default outside choices", func(d *Definition) { d.Params[1].Default = "ALL" }},
		{"env referencing output", func(d *Definition) {
			d.Env["BAD"] = `{{ output "scan_status" }}`
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := baseDefinition()
			tt.mutate(&def)
			err := Validate(def)
			require.Error(t, err)
			require.True(t, errors.Is(err, pipeline.ErrConfiguration))
		})
	}
}

func TestParseDefaultsFailurePolicy(t *testing.T) {
	def, err := Parse([]byte(`
ID: demo
Stages:
  - id: only
    steps:
      - name: hello
        shell: ["echo hello"]
`))
	require.NoError(t, err)
	require.Equal(t, "FATAL", def.Stages[0].FailurePolicy)
}

func TestParseRejectsMissingID(t *testing.T) {
	_, err := Parse([]byte(`Stages: []`))
	require.True(t, errors.Is(err, pipeline.ErrConfiguration))
}
