package task

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const StatusCompleted = "Task completed successfully"

// Run executes the definition and closes the result.
// A panic is recovered and reported as a failure with the stack trace in the result error.
// Output evidence is marked as processed by the job, so the job is not scheduled for its own outputs.
func Run(ctx context.Context, def Definition, rc *RunContext, e evidence.Evidence, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task panicked: %v", r)
			result.Error = fmt.Sprintf("%v\n%s", r, debug.Stack())
		}
		if err != nil {
			if result.Error == "" {
				result.Error = errors.Format(err, errors.FormatWithStack())
			}
			result.Close(false, fmt.Sprintf("Task %s failed: %s", def.Name(), err.Error()))
			return
		}
		if !result.IsFinished() {
			result.Close(true, StatusCompleted)
		}
		for _, out := range result.Evidence {
			b := out.Common()
			b.RequestID = rc.Task.RequestID
			b.MarkProcessedBy(rc.Task.JobName)
		}
	}()
	return def.Run(ctx, rc, e, result)
}
