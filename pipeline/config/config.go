// Package config models the declarative pipeline definition: parameters,
// computed environment values, and the stage graph. One definition is a
// parameterized graph; per-variant differences are parameter overrides, not
// separate stage lists.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/conveyorci/conveyor/pipeline"
)

// Parameter types.
const (
	ParamString = "string"
	ParamChoice = "choice"
	ParamBool   = "boolean"
)

// Definition is the root of a pipeline file.
type Definition struct {
	ID     string            `yaml:"ID"`
	Config Settings          `yaml:"Config"`
	Params []Param           `yaml:"Params"`
	Env    map[string]string `yaml:"Env"`
	Stages []Stage           `yaml:"Stages"`
}

// Settings are engine-level knobs.
type Settings struct {
	//Timeout bounds the whole run, in seconds. 0 means the engine default.
	Timeout int64 `yaml:"Timeout"`
	//FailFast marks a parallel group FAILURE on the first failing member.
	FailFast bool `yaml:"FailFast"`
	//WorkDir is the base directory handed to the shell adapter.
	WorkDir string `yaml:"WorkDir"`
	//Tolerated lists the severity filters under which scan findings (exit
	//code 1) still allow publish stages to run.
	Tolerated []string `yaml:"Tolerated"`
	Notify    Notify   `yaml:"Notify"`
	Trigger   *Trigger `yaml:"Trigger"`
}

// Notify configures the terminal-report channel.
type Notify struct {
	//Channel is "webhook", "mail" or "none".
	Channel string   `yaml:"Channel"`
	URL     string   `yaml:"URL"`
	To      []string `yaml:"To"`
	Subject string   `yaml:"Subject"`
}

// Trigger configures the downstream job fired on overall SUCCESS.
type Trigger struct {
	Job    string            `yaml:"Job"`
	URL    string            `yaml:"URL"`
	Params map[string]string `yaml:"Params"`
}

// Param is a declared run parameter.
type Param struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Default string   `yaml:"default"`
	Choices []string `yaml:"choices"`
}

// Stage is one declared unit of work.
type Stage struct {
	ID string `yaml:"id"`
	//When is a template predicate; empty means always run.
	When  string `yaml:"when"`
	Group string `yaml:"group"`
	//AlwaysRun schedules the stage even after a FATAL abort.
	AlwaysRun bool `yaml:"alwaysRun"`
	//FailurePolicy is FATAL (default), UNSTABLE or IGNORED.
	FailurePolicy string   `yaml:"failurePolicy"`
	Retry         Retry    `yaml:"retry"`
	Needs         []string `yaml:"needs"`
	//Outputs maps declared output keys to extraction paths over the last
	//step's result ("stdout", "exitcode" or a "$..." jsonpath).
	Outputs map[string]string `yaml:"outputs"`
	Steps   []Step            `yaml:"steps"`
}

// Step is one adapter invocation inside a stage body.
type Step struct {
	Name string `yaml:"name"`
	//Shell lines are joined and run through the shell adapter.
	Shell []string `yaml:"shell"`
	//Call targets a named collaborator operation instead of a shell script.
	Call    *Call             `yaml:"call"`
	Env     map[string]string `yaml:"env"`
	Timeout int64             `yaml:"timeout"`
}

// Call is a collaborator invocation, e.g. target "registry.push".
type Call struct {
	Target string                 `yaml:"target"`
	Args   map[string]interface{} `yaml:"args"`
}

// Parse decodes a pipeline definition from yaml.
func Parse(raw []byte) (Definition, error) {
	def := Definition{}
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return def, errors.Wrapf(pipeline.ErrConfiguration, "malformed pipeline definition: %s", err)
	}
	if def.ID == "" {
		return def, errors.Wrap(pipeline.ErrConfiguration, "pipeline ID is required")
	}
	for i := range def.Stages {
		if def.Stages[i].FailurePolicy == "" {
			def.Stages[i].FailurePolicy = string(pipeline.FailureFatal)
		}
	}
	return def, nil
}

// Load reads and parses a pipeline definition file.
func Load(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, errors.Wrapf(pipeline.ErrConfiguration, "read %s: %s", path, err)
	}
	return Parse(raw)
}

// Retry is a stage retry policy. Attempts counts total invocations.
type Retry struct {
	Attempts int   `yaml:"attempts"`
	Delay    int64 `yaml:"delay"`
}

// Param returns the declared parameter by name.
func (d Definition) Param(name string) (Param, bool) {
	for _, item := range d.Params {
		if item.Name == name {
			return item, true
		}
	}
	return Param{}, false
}

// Stage returns the declared stage by id.
func (d Definition) Stage(id string) (Stage, bool) {
	for _, item := range d.Stages {
		if item.ID == id {
			return item, true
		}
	}
	return Stage{}, false
}

// Producer returns the stage declaring the given output key.
func (d Definition) Producer(outputKey string) (Stage, bool) {
	for _, item := range d.Stages {
		if _, ok := item.Outputs[outputKey]; ok {
			return item, true
		}
	}
	return Stage{}, false
}
