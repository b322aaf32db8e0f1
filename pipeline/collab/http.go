package collab

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/conveyorci/conveyor/pipeline/util"
)

// HTTP-backed collaborators, all on resty with the engine's fixed
// retry-count-plus-fixed-wait policy where the contract calls for one.

// RestyArtifactStore uploads report files to an object store over HTTP.
type RestyArtifactStore struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Upload PUTs the file under remoteKey. An absent or zero-length local file
// is a skip, not an error: the store returns ("", nil).
func (r *RestyArtifactStore) Upload(ctx context.Context, localPath, remoteKey string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil || info.Size() == 0 {
		util.SystemLog(ctx, "artifact %s absent or empty, upload skipped", localPath)
		return "", nil
	}
	timeout := r.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	remoteURL := r.BaseURL + "/" + remoteKey
	resp, err := resty.New().
		SetTimeout(timeout).
		R().
		SetContext(ctx).
		SetAuthToken(r.Token).
		SetFile("file", localPath).
		Put(remoteURL)
	if err != nil {
		return "", errors.Wrapf(pipeline.ErrTransient, "upload %s: %s", remoteKey, err)
	}
	if resp.IsError() {
		return "", errors.Wrapf(pipeline.ErrToolFailure, "upload %s: http %d %s", remoteKey, resp.StatusCode(), string(resp.Body()))
	}
	return remoteURL, nil
}

// RestyHealthCheck probes an endpoint with fixed retries and a fixed sleep.
type RestyHealthCheck struct {
	Retries int
	Wait    time.Duration
}

type healthQuery struct {
	Probe string `query:"probe"`
}

func (r *RestyHealthCheck) Get(ctx context.Context, url string) (int, error) {
	retries := r.Retries
	if retries == 0 {
		retries = 5
	}
	wait := r.Wait
	if wait == 0 {
		wait = 3 * time.Second
	}
	query, err := util.QueryString(healthQuery{Probe: "smoke"})
	if err != nil {
		return 0, err
	}
	resp, err := resty.NewWithClient(http.DefaultClient).
		SetRetryCount(retries).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(wait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || !r.IsSuccess()
		}).
		R().
		SetContext(ctx).
		SetQueryString(query).
		Get(url)
	if err != nil {
		return 0, errors.Wrapf(pipeline.ErrTransient, "health check %s: %s", url, err)
	}
	if !resp.IsSuccess() {
		return resp.StatusCode(), errors.Wrapf(pipeline.ErrToolFailure, "health check %s: http %d", url, resp.StatusCode())
	}
	return resp.StatusCode(), nil
}

// RestyTrigger fires a downstream job over HTTP.
type RestyTrigger struct {
	URL   string
	Token string
}

func (r *RestyTrigger) TriggerJob(ctx context.Context, jobName string, params map[string]string) (bool, error) {
	resp, err := resty.NewWithClient(http.DefaultClient).
		SetTimeout(30 * time.Second).
		R().
		SetContext(ctx).
		SetAuthToken(r.Token).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"job":    jobName,
			"params": params,
		}).
		Post(r.URL)
	if err != nil {
		return false, errors.Wrapf(pipeline.ErrTransient, "trigger %s: %s", jobName, err)
	}
	if resp.IsError() {
		return false, nil
	}
	return true, nil
}
