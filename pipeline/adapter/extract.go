package adapter

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/oliveagle/jsonpath"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/conveyorci/conveyor/pipeline"
)

// Pseudo-paths usable in a stage's outputs block next to real jsonpath
// expressions over the tool's stdout.
const (
	PathStdout   = "stdout"
	PathExitCode = "exitcode"
)

// Extract pulls the declared outputs out of an invocation result. Each
// mapping is key -> pseudo-path or jsonpath ("$....") over stdout JSON.
func Extract(result pipeline.Result, outputs map[string]string) (map[string]string, error) {
	produced := map[string]string{}
	var doc interface{}
	parsed := false
	for key, path := range outputs {
		switch {
		case path == PathStdout:
			produced[key] = strings.TrimSpace(result.Stdout)
		case path == PathExitCode:
			produced[key] = cast.ToString(result.ExitCode)
		case strings.HasPrefix(path, "$"):
			if !parsed {
				if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(result.Stdout), &doc); err != nil {
					return nil, errors.Wrapf(pipeline.ErrToolFailure, "output %q wants %q but stdout is not json: %s", key, path, err)
				}
				parsed = true
			}
			value, err := jsonpath.JsonPathLookup(doc, path)
			if err != nil {
				return nil, errors.Wrapf(pipeline.ErrToolFailure, "output %q path %q: %s", key, path, err)
			}
			produced[key] = cast.ToString(value)
		default:
			return nil, errors.Wrapf(pipeline.ErrConfiguration, "output %q has unsupported path %q", key, path)
		}
	}
	return produced, nil
}
