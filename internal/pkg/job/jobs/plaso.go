package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
)

const (
	PlasoJobName        = "PlasoJob"
	PlasoParserTaskName = "PlasoParserTask"
	PlasoHasherTaskName = "PlasoHasherTask"
	plasoProgram        = "log2timeline.py"
)

// PlasoJob creates a timeline of the evidence.
type PlasoJob struct {
	job.Base
}

// PlasoParserTask runs all plaso parsers.
type PlasoParserTask struct{}

// PlasoHasherTask computes hashes of all files.
type PlasoHasherTask struct{}

func NewPlasoJob() *PlasoJob {
	return &PlasoJob{Base: job.Base{
		JobName: PlasoJobName,
		Input: []string{
			evidence.TypeBodyFile, evidence.TypeContainerdContainer, evidence.TypeDirectory, evidence.TypeEwfDisk,
			evidence.TypeRawDisk, evidence.TypeGoogleCloudDisk, evidence.TypeGoogleCloudDiskRawEmbedded,
			evidence.TypeCompressedDirectory, evidence.TypeDockerContainer,
		},
		Output:     []string{evidence.TypePlasoFile},
		Programs:   []string{plasoProgram},
		MaxRunTime: 24 * time.Hour,
	}}
}

// CreateTasks skips the hasher for a body file, it has no file content.
func (j *PlasoJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	e := batch[0]
	if e.Type() == evidence.TypeBodyFile {
		return job.NewTasks(j, e, PlasoParserTaskName)
	}
	return job.NewTasks(j, e, PlasoHasherTaskName, PlasoParserTaskName)
}

func plasoRequiredStates() []evidence.State {
	return []evidence.State{evidence.StateAttached, evidence.StateDecompressed, evidence.StateContainerMounted}
}

func runPlaso(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result, suffix string, extraArgs ...string) error {
	storage := filepath.Join(rc.OutputDir, fmt.Sprintf("%s%s.plaso", rc.Task.ID, suffix))
	args := []string{"--status_view", "none", "--unattended", "--storage_file", storage}
	args = append(args, extraArgs...)
	if rules := rc.Task.RecipeString("yara_rules"); rules != "" {
		args = append(args, "--yara_rules", rules)
	}
	args = append(args, e.Common().LocalPath)

	if _, err := rc.Executor.Execute(ctx, task.Command{Name: plasoProgram, Args: args}); err != nil {
		return err
	}

	out := evidence.NewPlasoFile(storage)
	out.Source = e.Name()
	result.AddEvidence(out)
	result.AddSavedPath(storage)
	return nil
}

func (t *PlasoParserTask) Name() string {
	return PlasoParserTaskName
}

func (t *PlasoParserTask) RequiredStates() []evidence.State {
	return plasoRequiredStates()
}

func (t *PlasoParserTask) Run(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	var args []string
	if parsers := rc.Task.RecipeStrings("parsers"); len(parsers) > 0 {
		args = append(args, "--parsers", strings.Join(parsers, ","))
	}
	return runPlaso(ctx, rc, e, result, "", args...)
}

func (t *PlasoHasherTask) Name() string {
	return PlasoHasherTaskName
}

func (t *PlasoHasherTask) RequiredStates() []evidence.State {
	return plasoRequiredStates()
}

func (t *PlasoHasherTask) Run(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	return runPlaso(ctx, rc, e, result, "-hashes", "--parsers", "filestat", "--hashers", "md5,sha256")
}
