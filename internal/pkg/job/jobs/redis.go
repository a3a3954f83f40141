package jobs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	RedisExtractionJobName         = "RedisExtractionJob"
	RedisAnalysisJobName           = "RedisAnalysisJob"
	FileArtifactExtractionTaskName = "FileArtifactExtractionTask"
	RedisAnalysisTaskName          = "RedisAnalysisTask"
	RedisConfigArtifact            = "RedisConfigFile"
	artifactNameArg                = "artifact_name"
	imageExportProgram             = "image_export.py"
)

// RedisExtractionJob extracts Redis configuration files.
type RedisExtractionJob struct {
	job.Base
}

// RedisAnalysisJob checks extracted Redis configuration files.
type RedisAnalysisJob struct {
	job.Base
}

// FileArtifactExtractionTask exports files matching an artifact definition, see the "artifact_name" task argument.
type FileArtifactExtractionTask struct{}

type RedisAnalysisTask struct{}

func NewRedisExtractionJob() *RedisExtractionJob {
	return &RedisExtractionJob{Base: job.Base{
		JobName: RedisExtractionJobName,
		Input: []string{
			evidence.TypeContainerdContainer, evidence.TypeDirectory, evidence.TypeDockerContainer, evidence.TypeGoogleCloudDisk,
			evidence.TypeGoogleCloudDiskRawEmbedded, evidence.TypeRawDisk, evidence.TypeEwfDisk,
		},
		Output:     []string{evidence.TypeExportedFileArtifact},
		Programs:   []string{imageExportProgram},
		MaxRunTime: time.Hour,
	}}
}

func NewRedisAnalysisJob() *RedisAnalysisJob {
	return &RedisAnalysisJob{Base: job.Base{
		JobName:    RedisAnalysisJobName,
		Input:      []string{evidence.TypeExportedFileArtifact},
		Output:     []string{evidence.TypeReportText},
		MaxRunTime: 10 * time.Minute,
	}}
}

func (j *RedisExtractionJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	tasks := job.NewTasks(j, batch[0], FileArtifactExtractionTaskName)
	for _, t := range tasks {
		t.Args = map[string]string{artifactNameArg: RedisConfigArtifact}
	}
	return tasks
}

// CreateTasks skips other artifacts.
func (j *RedisAnalysisJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	if artifact, ok := batch[0].(*evidence.ExportedFileArtifact); !ok || artifact.ArtifactName != RedisConfigArtifact {
		return nil
	}
	return job.NewTasks(j, batch[0], RedisAnalysisTaskName)
}

func (t *FileArtifactExtractionTask) Name() string {
	return FileArtifactExtractionTaskName
}

func (t *FileArtifactExtractionTask) RequiredStates() []evidence.State {
	return []evidence.State{evidence.StateAttached, evidence.StateContainerMounted}
}

func (t *FileArtifactExtractionTask) Run(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	artifact := rc.Task.Args[artifactNameArg]
	if artifact == "" {
		return errors.Errorf(`task argument "%s" is not set`, artifactNameArg)
	}

	files, err := exportArtifact(ctx, rc, e, artifact, filepath.Join(rc.OutputDir, "export"))
	if err != nil {
		return err
	}
	for _, path := range files {
		out := evidence.NewExportedFileArtifact(path, artifact)
		out.Source = e.Name()
		result.AddEvidence(out)
		result.AddSavedPath(path)
	}
	result.Close(true, fmt.Sprintf("Extracted %d file(s) of the %s artifact", len(files), artifact))
	return nil
}

// exportArtifact runs image_export.py and returns paths of the exported files.
func exportArtifact(ctx context.Context, rc *task.RunContext, e evidence.Evidence, artifact, exportDir string) ([]string, error) {
	args := []string{"--no-hashes", "--partitions", "all", "--volumes", "all", "--unattended", "--artifact_filters", artifact, "-w", exportDir, e.Common().LocalPath}
	if _, err := rc.Executor.Execute(ctx, task.Command{Name: imageExportProgram, Args: args}); err != nil {
		return nil, err
	}

	var files []string
	err := filepath.WalkDir(exportDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.PrefixErrorf(err, `cannot list exported files in "%s"`, exportDir)
	}
	return files, nil
}

func (t *RedisAnalysisTask) Name() string {
	return RedisAnalysisTaskName
}

func (t *RedisAnalysisTask) RequiredStates() []evidence.State {
	return nil
}

func (t *RedisAnalysisTask) Run(_ context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	content, err := os.ReadFile(e.Common().LocalPath)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot read Redis config "%s"`, e.Common().LocalPath)
	}

	findings := AnalyseRedisConfig(content)
	summary := "No issues found in Redis configuration"
	if len(findings) > 0 {
		summary = fmt.Sprintf("Insecure Redis configuration found, %d issue(s)", len(findings))
	}
	return reportFindings(rc, result, "redis_analysis.txt", summary, findings, task.PriorityHigh)
}

// AnalyseRedisConfig returns security issues of the Redis configuration.
func AnalyseRedisConfig(content []byte) []string {
	directives := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		directives[strings.ToLower(key)] = strings.TrimSpace(value)
	}

	var findings []string
	bind, found := directives["bind"]
	if !found || bind == "" || strings.Contains(bind, "0.0.0.0") || strings.Contains(bind, "*") {
		findings = append(findings, "Redis listens on every network interface")
	}
	if _, found := directives["requirepass"]; !found {
		findings = append(findings, "Redis authentication is not enabled")
	}
	if strings.EqualFold(directives["protected-mode"], "no") {
		findings = append(findings, "Redis protected mode is disabled")
	}
	return findings
}
