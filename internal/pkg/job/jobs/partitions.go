package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/textformat"
)

const (
	PartitionEnumerationJobName  = "PartitionEnumerationJob"
	PartitionEnumerationTaskName = "PartitionEnumerationTask"
)

// PartitionEnumerationJob creates a partition evidence for each volume of a disk.
type PartitionEnumerationJob struct {
	job.Base
}

type PartitionEnumerationTask struct{}

func NewPartitionEnumerationJob() *PartitionEnumerationJob {
	return &PartitionEnumerationJob{Base: job.Base{
		JobName:    PartitionEnumerationJobName,
		Input:      []string{evidence.TypeEwfDisk, evidence.TypeGoogleCloudDisk, evidence.TypeGoogleCloudDiskRawEmbedded, evidence.TypeRawDisk},
		Output:     []string{evidence.TypeDiskPartition},
		Programs:   []string{"sfdisk", "blkid", "losetup"},
		MaxRunTime: 10 * time.Minute,
	}}
}

func (j *PartitionEnumerationJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	return job.NewTasks(j, batch[0], PartitionEnumerationTaskName)
}

func (t *PartitionEnumerationTask) Name() string {
	return PartitionEnumerationTaskName
}

func (t *PartitionEnumerationTask) RequiredStates() []evidence.State {
	return []evidence.State{evidence.StateAttached}
}

func (t *PartitionEnumerationTask) Run(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	partitions, err := rc.Processor.EnumeratePartitions(ctx, e.Common().LocalPath, "")
	if err != nil {
		return err
	}

	report := &textformat.Builder{}
	report.Line(textformat.Heading4(fmt.Sprintf("Found %d partition(s) in [%s]:", len(partitions), e.Name())))
	for _, p := range partitions {
		partition := evidence.NewDiskPartition(p.Location)
		partition.PartitionOffset = p.Offset
		partition.PartitionSize = p.Size
		partition.PathSpec = &p
		partition.SetParent(e)
		result.AddEvidence(partition)

		line := fmt.Sprintf("%s: offset %d, size %s", p.Location, p.Offset, datasize.ByteSize(p.Size).HR())
		if p.FSType != "" {
			line += ", filesystem " + p.FSType
		}
		if p.Encryption != "" {
			line += ", encryption " + p.Encryption
		}
		report.Line(textformat.Bullet(line, 1))
	}

	result.ReportData = report.String()
	result.Close(true, fmt.Sprintf("Found %d partition(s) in [%s]", len(partitions), e.Name()))
	return nil
}
