// Package notify dispatches the terminal run report. The engine guarantees
// at most one dispatch per run; the notifiers here only build and send.
package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/collab"
	"github.com/conveyorci/conveyor/pipeline/util"
)

// Nop swallows the report. Used when a definition configures no channel.
type Nop struct{}

func (Nop) Notify(ctx context.Context, run *pipeline.Run) error {
	util.SystemLog(ctx, "run %s finished %s, notification channel disabled", run.ID, run.Overall)
	return nil
}

// Webhook POSTs the report as JSON.
type Webhook struct {
	URL   string
	Token string
}

type webhookStage struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs"`
	Message    string `json:"message,omitempty"`
}

func (w *Webhook) Notify(ctx context.Context, run *pipeline.Run) error {
	stages := funk.Map(run.Results, func(r pipeline.StageResult) webhookStage {
		return webhookStage{ID: r.StageID, Status: r.Status, DurationMs: r.DurationMs, Message: r.Message}
	}).([]webhookStage)
	resp, err := resty.NewWithClient(http.DefaultClient).
		SetTimeout(30*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.IsError()
		}).
		R().
		SetContext(ctx).
		SetAuthToken(w.Token).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"run":       run.ID,
			"status":    run.Overall,
			"stages":    stages,
			"failure":   run.FailureMessage(),
			"artifacts": ArtifactLinks(run),
		}).
		Post(w.URL)
	if err != nil {
		return errors.Wrapf(pipeline.ErrTransient, "notify webhook: %s", err)
	}
	if resp.IsError() {
		return errors.Errorf("notify webhook: http %d %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

// Mail renders the html report and hands it to the notification
// collaborator together with any report files recorded in state.
type Mail struct {
	Sender  collab.Notification
	To      []string
	Subject string
}

func (m *Mail) Notify(ctx context.Context, run *pipeline.Run) error {
	if m.Sender == nil {
		return errors.Wrap(pipeline.ErrConfiguration, "no notification collaborator wired")
	}
	body, err := RenderReport(run)
	if err != nil {
		return err
	}
	subject := m.Subject
	if subject == "" {
		subject = "pipeline " + run.ID + " " + run.Overall
	}
	attachments := []string{}
	for key, value := range run.Snapshot {
		if strings.HasSuffix(key, "report_path") && value != "" {
			attachments = append(attachments, value)
		}
	}
	return m.Sender.Send(ctx, m.To, subject, body, attachments)
}

// ArtifactLinks collects every url-valued state key for the report.
func ArtifactLinks(run *pipeline.Run) []string {
	links := []string{}
	for key, value := range run.Snapshot {
		if strings.HasSuffix(key, "url") && strings.HasPrefix(value, "http") {
			links = append(links, value)
		}
	}
	return links
}
