package config

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/thoas/go-funk"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/tmpl"
	"github.com/conveyorci/conveyor/pipeline/util"
)

// ApplyParams validates caller-supplied overrides against the declared
// parameters and returns the effective parameter set. Any violation is a
// configuration error and the run must not start.
func ApplyParams(def Definition, overrides map[string]string) (map[string]string, error) {
	effective := map[string]string{}
	for _, p := range def.Params {
		effective[p.Name] = p.Default
	}
	for name, value := range overrides {
		decl, ok := def.Param(name)
		if !ok {
			return nil, errors.Wrapf(pipeline.ErrConfiguration, "undeclared parameter %q", name)
		}
		switch decl.Type {
		case ParamChoice:
			if !util.InArray(value, decl.Choices) {
				return nil, errors.Wrapf(pipeline.ErrConfiguration, "parameter %q: %q is not one of %v", name, value, decl.Choices)
			}
		case ParamBool:
			if _, err := strconv.ParseBool(value); err != nil {
				return nil, errors.Wrapf(pipeline.ErrConfiguration, "parameter %q: %q is not a boolean", name, value)
			}
		case ParamString, "":
		default:
			return nil, errors.Wrapf(pipeline.ErrConfiguration, "parameter %q has unknown type %q", name, decl.Type)
		}
		effective[name] = value
	}
	return effective, nil
}

// Validate checks the definition before any stage executes: unique stage
// ids, valid policies, adjacent parallel groups, and every state-key
// reference resolvable in strictly data-dependent order.
func Validate(def Definition) error {
	if err := validateParams(def); err != nil {
		return err
	}
	if err := validateEnv(def); err != nil {
		return err
	}
	return validateStages(def)
}

func validateParams(def Definition) error {
	seen := map[string]bool{}
	for _, p := range def.Params {
		if p.Name == "" {
			return errors.Wrap(pipeline.ErrConfiguration, "parameter without a name")
		}
		if seen[p.Name] {
			return errors.Wrapf(pipeline.ErrConfiguration, "parameter %q declared twice", p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case ParamString, ParamBool, "":
		case ParamChoice:
			if len(p.Choices) == 0 {
				return errors.Wrapf(pipeline.ErrConfiguration, "choice parameter %q has no choices", p.Name)
			}
			if p.Default != "" && !util.InArray(p.Default, p.Choices) {
				return errors.Wrapf(pipeline.ErrConfiguration, "choice parameter %q: default %q is not a choice", p.Name, p.Default)
			}
		default:
			return errors.Wrapf(pipeline.ErrConfiguration, "parameter %q has unknown type %q", p.Name, p.Type)
		}
	}
	return nil
}

// validateEnv ensures environment templates only reference parameters:
// the env partition is computed once at run start, before any output exists.
func validateEnv(def Definition) error {
	for key, value := range def.Env {
		for _, ref := range tmpl.References(value) {
			if ref.Kind != "param" {
				return errors.Wrapf(pipeline.ErrConfiguration, "env %q may only reference parameters, found %s %q", key, ref.Kind, ref.Key)
			}
			if _, ok := def.Param(ref.Key); !ok {
				return errors.Wrapf(pipeline.ErrConfiguration, "env %q references undeclared parameter %q", key, ref.Key)
			}
		}
	}
	return nil
}

func validateStages(def Definition) error {
	indexByID := map[string]int{}
	for i, s := range def.Stages {
		if s.ID == "" {
			return errors.Wrapf(pipeline.ErrConfiguration, "stage #%d has no id", i)
		}
		if _, ok := indexByID[s.ID]; ok {
			return errors.Wrapf(pipeline.ErrConfiguration, "stage %q declared twice", s.ID)
		}
		indexByID[s.ID] = i
	}
	outputProducer := map[string]string{}
	for _, s := range def.Stages {
		for key := range s.Outputs {
			if owner, ok := outputProducer[key]; ok {
				return errors.Wrapf(pipeline.ErrConfiguration, "output %q declared by both %q and %q", key, owner, s.ID)
			}
			outputProducer[key] = s.ID
		}
	}
	for i, s := range def.Stages {
		if len(s.Steps) == 0 {
			return errors.Wrapf(pipeline.ErrConfiguration, "stage %q has no steps", s.ID)
		}
		switch pipeline.FailurePolicy(s.FailurePolicy) {
		case pipeline.FailureFatal, pipeline.FailureUnstable, pipeline.FailureIgnored:
		default:
			return errors.Wrapf(pipeline.ErrConfiguration, "stage %q has unknown failurePolicy %q", s.ID, s.FailurePolicy)
		}
		if s.Retry.Attempts < 0 || s.Retry.Delay < 0 {
			return errors.Wrapf(pipeline.ErrConfiguration, "stage %q has a negative retry policy", s.ID)
		}
		for _, need := range s.Needs {
			ni, ok := indexByID[need]
			if !ok {
				return errors.Wrapf(pipeline.ErrConfiguration, "stage %q needs unknown stage %q", s.ID, need)
			}
			if ni >= i {
				return errors.Wrapf(pipeline.ErrConfiguration, "stage %q needs %q which is not declared before it", s.ID, need)
			}
		}
		if err := validateRefs(def, s, i, indexByID, outputProducer); err != nil {
			return err
		}
	}
	return validateGroups(def)
}

// validateRefs enforces the data-dependence invariant: an output may only be
// read by a stage declared after its producer, and never by a parallel
// sibling of the producer.
func validateRefs(def Definition, s Stage, index int, indexByID map[string]int, outputProducer map[string]string) error {
	for _, text := range stageTemplates(s) {
		for _, ref := range tmpl.References(text) {
			switch ref.Kind {
			case "param":
				if _, ok := def.Param(ref.Key); !ok {
					return errors.Wrapf(pipeline.ErrConfiguration, "stage %q references undeclared parameter %q", s.ID, ref.Key)
				}
			case "env":
				if _, ok := def.Env[ref.Key]; !ok {
					return errors.Wrapf(pipeline.ErrConfiguration, "stage %q references unknown environment value %q", s.ID, ref.Key)
				}
			case "output":
				producer, ok := outputProducer[ref.Key]
				if !ok {
					return errors.Wrapf(pipeline.ErrConfiguration, "stage %q reads output %q which no stage produces", s.ID, ref.Key)
				}
				pi := indexByID[producer]
				if pi >= index {
					return errors.Wrapf(pipeline.ErrConfiguration, "stage %q reads output %q before producer %q has run", s.ID, ref.Key, producer)
				}
				if s.Group != "" && s.Group == def.Stages[pi].Group {
					return errors.Wrapf(pipeline.ErrConfiguration, "stage %q reads output %q from parallel sibling %q", s.ID, ref.Key, producer)
				}
			}
		}
	}
	return nil
}

// validateGroups requires group members to be adjacent in the declared
// sequence so the fan-out/fan-in point is unambiguous.
func validateGroups(def Definition) error {
	for _, s := range def.Stages {
		if s.Group != "" && s.AlwaysRun {
			return errors.Wrapf(pipeline.ErrConfiguration, "stage %q: alwaysRun stages cannot join a parallel group", s.ID)
		}
	}
	closed := []string{}
	current := ""
	for _, s := range def.Stages {
		if s.Group == current {
			continue
		}
		if s.Group != "" && funk.ContainsString(closed, s.Group) {
			return errors.Wrapf(pipeline.ErrConfiguration, "parallel group %q members are not adjacent", s.Group)
		}
		if current != "" {
			closed = append(closed, current)
		}
		current = s.Group
	}
	return nil
}

func stageTemplates(s Stage) []string {
	texts := []string{s.When}
	for _, step := range s.Steps {
		texts = append(texts, step.Shell...)
		for _, v := range step.Env {
			texts = append(texts, v)
		}
		if step.Call != nil {
			texts = append(texts, callTemplates(step.Call.Args)...)
		}
	}
	return texts
}

func callTemplates(args map[string]interface{}) []string {
	texts := []string{}
	for _, v := range args {
		switch value := v.(type) {
		case string:
			texts = append(texts, value)
		case map[string]interface{}:
			texts = append(texts, callTemplates(value)...)
		case []interface{}:
			for _, item := range value {
				texts = append(texts, cast.ToString(item))
			}
		}
	}
	return texts
}
