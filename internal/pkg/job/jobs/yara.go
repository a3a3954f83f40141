package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/textformat"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	YaraAnalysisJobName  = "YaraAnalysisJob"
	YaraAnalysisTaskName = "YaraAnalysisTask"
	yaraProgram          = "fraken"
)

// YaraAnalysisJob scans files by yara rules.
type YaraAnalysisJob struct {
	job.Base
}

type YaraAnalysisTask struct{}

func NewYaraAnalysisJob() *YaraAnalysisJob {
	return &YaraAnalysisJob{Base: job.Base{
		JobName: YaraAnalysisJobName,
		Input: []string{
			evidence.TypeCompressedDirectory, evidence.TypeContainerdContainer, evidence.TypeDirectory,
			evidence.TypeDiskPartition, evidence.TypeDockerContainer,
		},
		Output:     []string{evidence.TypeReportText},
		Programs:   []string{yaraProgram},
		MaxRunTime: 4 * time.Hour,
	}}
}

func (j *YaraAnalysisJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	return job.NewTasks(j, batch[0], YaraAnalysisTaskName)
}

func (t *YaraAnalysisTask) Name() string {
	return YaraAnalysisTaskName
}

func (t *YaraAnalysisTask) RequiredStates() []evidence.State {
	return []evidence.State{evidence.StateMounted, evidence.StateDecompressed, evidence.StateContainerMounted}
}

// Run scans the evidence by rules from the recipe, each line of the output is one match.
func (t *YaraAnalysisTask) Run(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	args := []string{"-folder", e.Common().LocalPath}
	if v, ok := rc.Task.RecipeValue("yara_rules"); ok {
		rulesFile := filepath.Join(rc.TmpDir, "rules.yar")
		if err := os.WriteFile(rulesFile, []byte(fmt.Sprint(v)), 0o600); err != nil {
			return errors.PrefixError(err, "cannot write yara rules")
		}
		args = append(args, "-extrayara", rulesFile)
	}

	output := filepath.Join(rc.OutputDir, "yara_matches.txt")
	stdout, err := rc.Executor.Execute(ctx, task.Command{Name: yaraProgram, Args: args, OutputFile: output})
	if err != nil {
		return err
	}

	var matches []string
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			matches = append(matches, line)
		}
	}

	report := &textformat.Builder{}
	if len(matches) == 0 {
		report.Line(textformat.Heading4("No Yara rules matched"))
		result.Close(true, "No Yara rules matched")
	} else {
		summary := fmt.Sprintf("Found %d Yara rule match(es)", len(matches))
		report.Line(textformat.Heading4(textformat.Bold(summary)))
		for _, m := range matches {
			report.Line(textformat.Bullet(m, 1))
		}
		result.SetPriority(task.PriorityHigh)
		result.Close(true, summary)
	}

	out := evidence.NewReportText(report.String())
	out.SourcePath = output
	result.AddEvidence(out)
	result.AddSavedPath(output)
	result.ReportData = report.String()
	return nil
}
