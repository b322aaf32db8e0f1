package notify

import (
	"context"
	"testing"
	"time"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/stretchr/testify/require"
)

func sampleRun() *pipeline.Run {
	return &pipeline.Run{
		ID:      "run-1",
		Overall: pipeline.StatusFailure,
		Results: []pipeline.StageResult{
			{StageID: "checkout", Status: pipeline.StageStatusSuccess, DurationMs: 1200},
			{StageID: "build", Status: pipeline.StageStatusFailure, DurationMs: 400, Message: "mvn exit 1"},
			{StageID: "push", Status: pipeline.StageStatusSkipped},
		},
		StartTime: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC),
		Snapshot: map[string]string{
			"report_url":       "http://store/reports/run-1",
			"scan_report_path": "/tmp/run-1/scan-report.json",
			"BRANCH":           "main",
		},
	}
}

func TestRenderReport(t *testing.T) {
	body, err := RenderReport(sampleRun())
	require.NoError(t, err)
	require.Contains(t, body, "run-1")
	require.Contains(t, body, "FAILURE")
	require.Contains(t, body, "<td>checkout</td>")
	require.Contains(t, body, "<td>SKIPPED</td>")
	require.Contains(t, body, "mvn exit 1")
	require.Contains(t, body, "http://store/reports/run-1")
}

type fakeSender struct {
	calls       int
	to          []string
	subject     string
	body        string
	attachments []string
}

func (f *fakeSender) Send(ctx context.Context, to []string, subject, htmlBody string, attachments []string) error {
	f.calls++
	f.to = to
	f.subject = subject
	f.body = htmlBody
	f.attachments = attachments
	return nil
}

func TestMailNotifier(t *testing.T) {
	sender := &fakeSender{}
	m := &Mail{Sender: sender, To: []string{"team@example.com"}}
	require.NoError(t, m.Notify(context.Background(), sampleRun()))
	require.Equal(t, 1, sender.calls)
	require.Equal(t, []string{"team@example.com"}, sender.to)
	require.Equal(t, "pipeline run-1 FAILURE", sender.subject)
	require.Contains(t, sender.body, "<td>build</td>")
	require.Equal(t, []string{"/tmp/run-1/scan-report.json"}, sender.attachments)
}

func TestArtifactLinks(t *testing.T) {
	links := ArtifactLinks(sampleRun())
	require.Equal(t, []string{"http://store/reports/run-1"}, links)
}
