package notify

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"

	"github.com/conveyorci/conveyor/pipeline"
)

// reportTemplate is the fixed field set of the terminal report: job
// identity, stage-by-stage status, artifact links, and the deepest captured
// failure message.
const reportTemplate = `<html>
<body>
<h2>Pipeline {{ .Run.ID }} &mdash; {{ .Run.Overall }}</h2>
<table border="1" cellpadding="4">
  <tr><th>Stage</th><th>Status</th><th>Duration</th></tr>
{{- range .Run.Results }}
  <tr><td>{{ .StageID }}</td><td>{{ .Status }}</td><td>{{ .DurationMs }}ms</td></tr>
{{- end }}
</table>
{{- if .Failure }}
<p><b>Error:</b> <pre>{{ .Failure }}</pre></p>
{{- end }}
{{- if .Artifacts }}
<p>Artifacts:</p>
<ul>
{{- range .Artifacts }}
  <li><a href="{{ . }}">{{ . }}</a></li>
{{- end }}
</ul>
{{- end }}
<p><i>started {{ .Run.StartTime.Format "2006-01-02 15:04:05" }}, finished {{ .Run.EndTime.Format "2006-01-02 15:04:05" }}</i></p>
</body>
</html>`

// RenderReport builds the html body of the terminal report.
func RenderReport(run *pipeline.Run) (string, error) {
	engine, err := template.New("report").Funcs(sprig.TxtFuncMap()).Parse(reportTemplate)
	if err != nil {
		return "", errors.Wrap(err, "report template")
	}
	var buf bytes.Buffer
	err = engine.Execute(&buf, map[string]interface{}{
		"Run":       run,
		"Failure":   run.FailureMessage(),
		"Artifacts": ArtifactLinks(run),
	})
	if err != nil {
		return "", errors.Wrap(err, "render report")
	}
	return buf.String(), nil
}
