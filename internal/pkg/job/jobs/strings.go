package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
)

const (
	StringsJobName         = "StringsJob"
	StringsAsciiTaskName   = "StringsAsciiTask"
	StringsUnicodeTaskName = "StringsUnicodeTask"
)

// StringsJob extracts printable strings from disks.
type StringsJob struct {
	job.Base
}

// StringsTask extracts ASCII strings, or UTF-16LE strings if unicode is set.
type StringsTask struct {
	unicode bool
}

func NewStringsJob() *StringsJob {
	return &StringsJob{Base: job.Base{
		JobName: StringsJobName,
		Input: []string{
			evidence.TypeRawDisk, evidence.TypeGoogleCloudDisk, evidence.TypeGoogleCloudDiskRawEmbedded, evidence.TypeEwfDisk,
		},
		Output:     []string{evidence.TypeTextFile},
		Programs:   []string{"strings"},
		MaxRunTime: 12 * time.Hour,
	}}
}

func (j *StringsJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	return job.NewTasks(j, batch[0], StringsAsciiTaskName, StringsUnicodeTaskName)
}

func (t *StringsTask) Name() string {
	if t.unicode {
		return StringsUnicodeTaskName
	}
	return StringsAsciiTaskName
}

func (t *StringsTask) RequiredStates() []evidence.State {
	return []evidence.State{evidence.StateAttached}
}

func (t *StringsTask) Run(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	encoding := "ascii"
	args := []string{"-a", "-t", "d"}
	if t.unicode {
		encoding = "uni"
		args = append(args, "-e", "l")
	}
	args = append(args, e.Common().LocalPath)

	output := filepath.Join(rc.OutputDir, fmt.Sprintf("%s.%s", filepath.Base(e.Common().LocalPath), encoding))
	if _, err := rc.Executor.Execute(ctx, task.Command{Name: "strings", Args: args, OutputFile: output}); err != nil {
		return err
	}

	out := evidence.NewTextFile(output)
	out.Source = e.Name()
	result.AddEvidence(out)
	result.AddSavedPath(output)
	result.Close(true, fmt.Sprintf("%s strings extracted to %s", encoding, output))
	return nil
}
