package jobs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/umisama/go-regexpcache"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/textformat"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	GrepJobName      = "GrepJob"
	GrepTaskName     = "GrepTask"
	filterPatternKey = "filter_patterns"
)

// GrepJob filters text outputs of other jobs by the "filter_patterns" recipe value.
// It is a fan-in job, one task processes the whole batch.
type GrepJob struct {
	job.Base
}

type GrepTask struct{}

func NewGrepJob() *GrepJob {
	return &GrepJob{Base: job.Base{
		JobName:    GrepJobName,
		Input:      []string{evidence.TypeBodyFile, evidence.TypeExportedFileArtifact, evidence.TypeReportText, evidence.TypeTextFile},
		Output:     []string{evidence.TypeTextFile},
		IsFanIn:    true,
		MaxRunTime: time.Hour,
	}}
}

func (j *GrepJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	if len(batch) == 0 {
		return nil
	}
	var e evidence.Evidence = evidence.NewEvidenceCollection(batch...)
	if len(batch) == 1 {
		e = batch[0]
	}
	return job.NewTasks(j, e, GrepTaskName)
}

func (t *GrepTask) Name() string {
	return GrepTaskName
}

func (t *GrepTask) RequiredStates() []evidence.State {
	return nil
}

func (t *GrepTask) Run(_ context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	patterns := rc.Task.RecipeStrings(filterPatternKey)
	if len(patterns) == 0 {
		result.Close(true, "No filter patterns specified, skipping")
		return nil
	}

	re, err := compilePatterns(patterns)
	if err != nil {
		return err
	}

	items := []evidence.Evidence{e}
	if c, ok := e.(*evidence.EvidenceCollection); ok {
		items = c.Collection
	}

	output := filepath.Join(rc.OutputDir, "filtered.txt")
	f, err := os.Create(output) // nolint: gosec
	if err != nil {
		return errors.PrefixError(err, "cannot create output file")
	}
	defer f.Close()

	report := &textformat.Builder{}
	total := 0
	for _, item := range items {
		n, err := grepEvidence(item, re, f)
		if err != nil {
			return errors.PrefixErrorf(err, `cannot filter evidence "%s"`, item.Name())
		}
		if n > 0 {
			report.Line(textformat.Bullet(fmt.Sprintf("%s: %d matching line(s)", item.Name(), n), 1))
		}
		total += n
	}
	if err := f.Close(); err != nil {
		return errors.PrefixError(err, "cannot close output file")
	}

	summary := fmt.Sprintf("Found %d line(s) matching %s", total, strings.Join(patterns, ", "))
	result.ReportData = textformat.Heading4(summary)
	if !report.Empty() {
		result.Report(report.String())
	}
	if total > 0 {
		out := evidence.NewTextFile(output)
		out.Source = e.Name()
		result.AddEvidence(out)
		result.AddSavedPath(output)
	}
	result.Close(true, summary)
	return nil
}

func compilePatterns(patterns []string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if _, err := regexpcache.Compile(p); err != nil {
			return nil, errors.PrefixErrorf(err, `invalid filter pattern "%s"`, p)
		}
		parts = append(parts, "(?:"+p+")")
	}
	return regexpcache.Compile(strings.Join(parts, "|"))
}

// grepEvidence writes matching lines to w, report text is filtered in memory.
func grepEvidence(e evidence.Evidence, re *regexp.Regexp, w io.Writer) (int, error) {
	var r io.Reader
	if report, ok := e.(*evidence.ReportText); ok && report.TextData != "" {
		r = strings.NewReader(report.TextData)
	} else {
		path := e.Common().LocalPath
		if path == "" {
			path = e.Common().SourcePath
		}
		f, err := os.Open(path) // nolint: gosec
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}

	count := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); re.MatchString(line) {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, scanner.Err()
}
