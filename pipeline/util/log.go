package util

import (
	"context"
	"fmt"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/golang/glog"
	"github.com/sanity-io/litter"
)

// SystemLog writes an engine-level log line tagged with the run id carried
// by ctx. Non-string values are dumped with litter so nested results stay
// readable.
func SystemLog(ctx context.Context, msg interface{}, v ...interface{}) {
	id := pipeline.RunIDFromContext(ctx)
	if id == "" {
		id = "-"
	}
	text := ""
	switch m := msg.(type) {
	case nil:
		return
	case string:
		text = fmt.Sprintf(m, v...)
	case error:
		text = m.Error()
	default:
		text = litter.Sdump(m)
	}
	glog.Infof("run=%s %s", id, text)
}

// SystemErrLog is SystemLog at error level.
func SystemErrLog(ctx context.Context, msg interface{}, v ...interface{}) {
	id := pipeline.RunIDFromContext(ctx)
	if id == "" {
		id = "-"
	}
	text := ""
	switch m := msg.(type) {
	case nil:
		return
	case string:
		text = fmt.Sprintf(m, v...)
	case error:
		text = m.Error()
	default:
		text = litter.Sdump(m)
	}
	glog.Errorf("run=%s %s", id, text)
}
