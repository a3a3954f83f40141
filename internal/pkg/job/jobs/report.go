package jobs

import (
	"os"
	"path/filepath"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/textformat"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// reportFindings writes the report to the output directory, adds it as ReportText and closes the result.
// The priority is set only if there is a finding.
func reportFindings(rc *task.RunContext, result *task.Result, fileName, summary string, findings []string, priority task.Priority) error {
	report := &textformat.Builder{}
	if len(findings) == 0 {
		report.Line(textformat.Heading4(summary))
	} else {
		report.Line(textformat.Heading4(textformat.Bold(summary)))
		for _, f := range findings {
			report.Line(textformat.Bullet(f, 1))
		}
		result.SetPriority(priority)
	}

	output := filepath.Join(rc.OutputDir, fileName)
	if err := os.WriteFile(output, []byte(report.String()+"\n"), 0o640); err != nil {
		return errors.PrefixError(err, "cannot write report")
	}
	out := evidence.NewReportText(report.String())
	out.SourcePath = output
	result.AddEvidence(out)
	result.AddSavedPath(output)
	result.ReportData = report.String()
	result.Close(true, summary)
	return nil
}
