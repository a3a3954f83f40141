package jobs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	JupyterExtractionJobName = "JupyterExtractionJob"
	JupyterAnalysisJobName   = "JupyterAnalysisJob"
	JupyterAnalysisTaskName  = "JupyterAnalysisTask"
	JupyterConfigArtifact    = "JupyterConfigFile"
)

// JupyterExtractionJob extracts Jupyter Notebook configuration files.
type JupyterExtractionJob struct {
	job.Base
}

// JupyterAnalysisJob checks extracted Jupyter Notebook configuration files.
type JupyterAnalysisJob struct {
	job.Base
}

type JupyterAnalysisTask struct{}

func NewJupyterExtractionJob() *JupyterExtractionJob {
	return &JupyterExtractionJob{Base: job.Base{
		JobName: JupyterExtractionJobName,
		Input: []string{
			evidence.TypeContainerdContainer, evidence.TypeDirectory, evidence.TypeDockerContainer, evidence.TypeEwfDisk,
			evidence.TypeGoogleCloudDisk, evidence.TypeGoogleCloudDiskRawEmbedded, evidence.TypeRawDisk,
		},
		Output:     []string{evidence.TypeExportedFileArtifact},
		Programs:   []string{imageExportProgram},
		MaxRunTime: time.Hour,
	}}
}

func NewJupyterAnalysisJob() *JupyterAnalysisJob {
	return &JupyterAnalysisJob{Base: job.Base{
		JobName:    JupyterAnalysisJobName,
		Input:      []string{evidence.TypeExportedFileArtifact},
		Output:     []string{evidence.TypeReportText},
		MaxRunTime: 10 * time.Minute,
	}}
}

func (j *JupyterExtractionJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	tasks := job.NewTasks(j, batch[0], FileArtifactExtractionTaskName)
	for _, t := range tasks {
		t.Args = map[string]string{artifactNameArg: JupyterConfigArtifact}
	}
	return tasks
}

// CreateTasks skips other artifacts.
func (j *JupyterAnalysisJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	if artifact, ok := batch[0].(*evidence.ExportedFileArtifact); !ok || artifact.ArtifactName != JupyterConfigArtifact {
		return nil
	}
	return job.NewTasks(j, batch[0], JupyterAnalysisTaskName)
}

func (t *JupyterAnalysisTask) Name() string {
	return JupyterAnalysisTaskName
}

func (t *JupyterAnalysisTask) RequiredStates() []evidence.State {
	return nil
}

func (t *JupyterAnalysisTask) Run(_ context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	content, err := os.ReadFile(e.Common().LocalPath)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot read Jupyter config "%s"`, e.Common().LocalPath)
	}

	findings := AnalyseJupyterConfig(content)
	summary := "No issues found in Jupyter Notebook configuration"
	if len(findings) > 0 {
		summary = fmt.Sprintf("Insecure Jupyter Notebook configuration found, %d issue(s)", len(findings))
	}
	return reportFindings(rc, result, "jupyter_analysis.txt", summary, findings, task.PriorityHigh)
}

// AnalyseJupyterConfig returns security issues of the jupyter_notebook_config.py settings.
func AnalyseJupyterConfig(content []byte) []string {
	var findings []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		setting := key[strings.LastIndex(key, ".")+1:]

		switch {
		case setting == "disable_check_xsrf" && value == "True":
			findings = append(findings, "XSRF protection is disabled")
		case setting == "allow_root" && value == "True":
			findings = append(findings, "Jupyter Notebook is allowed to run as root")
		case setting == "allow_remote_access" && value == "True":
			findings = append(findings, "Remote access is enabled")
		case setting == "password_required" && value == "False":
			findings = append(findings, "Password is not required to access the Jupyter Notebook")
		case setting == "password" && (value == "''" || value == `""`):
			findings = append(findings, "There is no password set for the Jupyter Notebook")
		}
	}
	return findings
}
