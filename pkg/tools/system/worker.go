package system

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"replygen/pkg/tools"
)

// Worker answers read-only questions about the host: current time and
// platform.
type Worker struct {
	now func() time.Time
}

func NewWorker() tools.Controller {
	return &Worker{now: time.Now}
}

// NewTool wraps a Worker as the "system_info" tool.
func NewTool() *tools.ActionTool {
	return tools.NewActionTool("system_info", "Read the current time or host platform", NewWorker())
}

func (w *Worker) Capabilities() []string {
	return []string{
		"now",
		"platform",
	}
}

func (w *Worker) Execute(req tools.ActionRequest) (*tools.ActionResponse, error) {
	switch req.Action {
	case "now":
		t := w.now()
		if tz, ok := req.StringParam("timezone"); ok {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return tools.Fail(err), nil
			}
			t = t.In(loc)
		}
		return tools.Succeed(t.Format(time.RFC3339)), nil

	case "platform":
		host, _ := os.Hostname()
		return tools.Succeed(fmt.Sprintf("os=%s arch=%s host=%s", runtime.GOOS, runtime.GOARCH, host)), nil

	default:
		return nil, fmt.Errorf("unsupported action: %s", req.Action)
	}
}
