// Package tmpl renders the template expressions embedded in pipeline
// definitions: stage predicates, environment values, and collaborator call
// arguments. Expressions use text/template with the sprig func map plus the
// engine funcs (param, env, output, jsonPath, canProceed).
package tmpl

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	jsoniter "github.com/json-iterator/go"
	"github.com/oliveagle/jsonpath"
	"github.com/pkg/errors"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/gate"
	"github.com/conveyorci/conveyor/pipeline/state"
)

var replaceFlagRe = regexp.MustCompile(`\{\{.+\}\}`)

// HasReplaceFlag reports whether text contains template actions at all.
func HasReplaceFlag(text string) bool {
	return replaceFlagRe.MatchString(text)
}

// FuncMap builds the engine func map over the run state. tolerated is the
// configured set of scan severity filters the publish gate accepts.
func FuncMap(st *state.State, tolerated []string) template.FuncMap {
	return template.FuncMap{
		"param": func(key string) (string, error) {
			v, ok := st.Param(key)
			if !ok {
				return "", errors.Wrapf(pipeline.ErrConfiguration, "undeclared parameter %q", key)
			}
			return v, nil
		},
		"env": func(key string) (string, error) {
			v, ok := st.Env(key)
			if !ok {
				return "", errors.Wrapf(pipeline.ErrConfiguration, "unknown environment value %q", key)
			}
			return v, nil
		},
		"output": func(key string) (string, error) {
			return st.Output(key)
		},
		"jsonPath": func(doc string, path string) (interface{}, error) {
			var data interface{}
			if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(doc), &data); err != nil {
				return nil, errors.Wrap(err, "jsonPath document")
			}
			return jsonpath.JsonPathLookup(data, path)
		},
		"scanStatus": func(v interface{}) string {
			return gate.FromValue(v).String()
		},
		"canProceed": func(statusValue interface{}, severityFilter string) bool {
			return gate.CanProceed(gate.FromValue(statusValue), severityFilter, tolerated)
		},
	}
}

// Parse renders one template expression against data.
func Parse(ctx context.Context, text string, data map[string]interface{}, fnMap template.FuncMap) (string, error) {
	if text == "" || !HasReplaceFlag(text) {
		return text, nil
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	engine, err := template.New("expr").Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Funcs(fnMap).Parse(text)
	if err != nil {
		return "", errors.Wrapf(pipeline.ErrConfiguration, "template %q: %s", text, err)
	}
	var buf bytes.Buffer
	if err := engine.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "template %q", text)
	}
	return buf.String(), nil
}

// Predicate renders a stage run-condition and interprets the result as a
// boolean. An empty predicate always runs.
func Predicate(ctx context.Context, expr string, data map[string]interface{}, fnMap template.FuncMap) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	rendered, err := Parse(ctx, expr, data, fnMap)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(rendered) == "true", nil
}

// ParseObject renders every string field of a typed value by round-tripping
// it through json. Values without template actions are returned untouched.
func ParseObject[T any](ctx context.Context, value T, data map[string]interface{}, fnMap template.FuncMap) (T, error) {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(value)
	if err != nil {
		return value, errors.Wrap(err, "marshal template object")
	}
	if !HasReplaceFlag(string(raw)) {
		return value, nil
	}
	var tree interface{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &tree); err != nil {
		return value, errors.Wrap(err, "unmarshal template object")
	}
	tree, err = parseTree(ctx, tree, data, fnMap)
	if err != nil {
		return value, err
	}
	raw, err = jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(tree)
	if err != nil {
		return value, errors.Wrap(err, "remarshal template object")
	}
	var result T
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &result); err != nil {
		return value, errors.Wrap(err, "rebuild template object")
	}
	return result, nil
}

func parseTree(ctx context.Context, node interface{}, data map[string]interface{}, fnMap template.FuncMap) (interface{}, error) {
	switch v := node.(type) {
	case string:
		return Parse(ctx, v, data, fnMap)
	case map[string]interface{}:
		for key, item := range v {
			parsed, err := parseTree(ctx, item, data, fnMap)
			if err != nil {
				return nil, err
			}
			v[key] = parsed
		}
		return v, nil
	case []interface{}:
		for i, item := range v {
			parsed, err := parseTree(ctx, item, data, fnMap)
			if err != nil {
				return nil, err
			}
			v[i] = parsed
		}
		return v, nil
	default:
		return node, nil
	}
}
