package jobs

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	FsstatJobName  = "FsstatJob"
	FsstatTaskName = "FsstatTask"
)

// nolint: gochecknoglobals
var fsstatUnsupported = []string{"apfs", "xfs"}

// FsstatJob runs fsstat on partitions.
type FsstatJob struct {
	job.Base
}

type FsstatTask struct{}

func NewFsstatJob() *FsstatJob {
	return &FsstatJob{Base: job.Base{
		JobName:    FsstatJobName,
		Input:      []string{evidence.TypeDiskPartition},
		Output:     []string{evidence.TypeReportText},
		Programs:   []string{"fsstat"},
		MaxRunTime: 10 * time.Minute,
	}}
}

func (j *FsstatJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	return job.NewTasks(j, batch[0], FsstatTaskName)
}

func (t *FsstatTask) Name() string {
	return FsstatTaskName
}

func (t *FsstatTask) RequiredStates() []evidence.State {
	return []evidence.State{evidence.StateAttached}
}

func (t *FsstatTask) Run(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	partition, ok := e.(*evidence.DiskPartition)
	if !ok || partition.PathSpec == nil {
		return errors.New("could not run fsstat since partition does not have a path spec")
	}
	if slices.Contains(fsstatUnsupported, strings.ToLower(partition.PathSpec.FSType)) {
		result.Close(true, "Not processing since partition is not supported")
		return nil
	}

	output := filepath.Join(rc.OutputDir, "fsstat.txt")
	stdout, err := rc.Executor.Execute(ctx, task.Command{Name: "fsstat", Args: []string{partition.DevicePath}, OutputFile: output})
	if err != nil {
		return err
	}

	report := evidence.NewReportText(stdout)
	report.SourcePath = output
	result.AddEvidence(report)
	result.AddSavedPath(output)
	result.ReportData = stdout
	return nil
}
