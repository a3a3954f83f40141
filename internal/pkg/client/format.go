package client

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/textformat"
)

const (
	groupHighPriority = "High Priority"
	groupSuccessful   = "Successful"
	groupFailed       = "Failed"
	groupRunning      = "Scheduled or Running"
)

// StatusOptions configure FormatTaskStatus.
type StatusOptions struct {
	// AllFields adds saved paths of tasks.
	AllFields bool
	// FullReport renders high priority tasks in detail.
	FullReport bool
	// PriorityFilter is the highest priority value, which is still reported as high priority.
	PriorityFilter task.Priority
}

func DefaultStatusOptions() StatusOptions {
	return StatusOptions{PriorityFilter: task.PriorityHigh}
}

func status(r *task.Result) string {
	if r.Status == "" {
		return "No task status"
	}
	return r.Status
}

// priority of a result without the value set is low.
func priority(r *task.Result) task.Priority {
	if r.ReportPriority == 0 {
		return task.PriorityLow
	}
	return r.ReportPriority
}

// FormatTaskDetail renders the task with its report data.
func FormatTaskDetail(r *task.Result, showFiles bool) []string {
	b := &textformat.Builder{}
	b.Line(textformat.Heading2(r.Name))
	b.Line(textformat.Bullet(textformat.Bold("Status:")+" "+status(r), 1))
	b.Line(textformat.Bullet("Task Id: "+r.ID, 1))
	b.Line(textformat.Bullet("Executed on worker "+r.WorkerName, 1))
	if r.ReportData != "" {
		b.Line("")
		b.Line(textformat.Heading3("Task Reported Data"))
		b.Lines(strings.Split(strings.TrimRight(r.ReportData, "\n"), "\n")...)
	}
	if showFiles {
		b.Line("")
		b.Line(textformat.Heading3("Saved Task Files:"))
		for _, path := range r.SavedPaths {
			b.Line(textformat.Bullet(textformat.Code(path), 1))
		}
		b.Line("")
	}
	return strings.Split(b.String(), "\n")
}

// FormatTask renders the task in one line, optionally with saved paths.
func FormatTask(r *task.Result, showFiles bool) []string {
	lines := []string{textformat.Bullet(fmt.Sprintf("%s: %s", r.Name, status(r)), 1)}
	if showFiles {
		for _, path := range r.SavedPaths {
			lines = append(lines, textformat.Bullet(textformat.Code(path), 2))
		}
		lines = append(lines, "")
	}
	return lines
}

// FormatTaskStatus renders results grouped into high priority, successful, failed and running tasks.
func FormatTaskStatus(results []*task.Result, opts StatusOptions) string {
	if len(results) == 0 {
		return ""
	}

	sorted := make([]*task.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return priority(sorted[i]) < priority(sorted[j]) })

	groups := make(map[string][]*task.Result)
	for _, r := range sorted {
		switch {
		case priority(r) <= opts.PriorityFilter:
			groups[groupHighPriority] = append(groups[groupHighPriority], r)
		case r.IsSuccessful():
			groups[groupSuccessful] = append(groups[groupSuccessful], r)
		case r.IsFailed():
			groups[groupFailed] = append(groups[groupFailed], r)
		default:
			groups[groupRunning] = append(groups[groupRunning], r)
		}
	}

	b := &textformat.Builder{}
	b.Line("")
	b.Line(textformat.Heading1("Turbinia report " + sorted[0].RequestID))
	b.Line(textformat.Bullet(fmt.Sprintf("Processed %d Tasks for user %s", len(sorted), sorted[0].Requester), 1))
	for _, group := range []string{groupHighPriority, groupSuccessful, groupFailed, groupRunning} {
		b.Line("")
		b.Line(textformat.Heading1(group + " Tasks"))
		if len(groups[group]) == 0 {
			b.Line(textformat.Bullet("None", 1))
		}
		for _, r := range groups[group] {
			if opts.FullReport && group == groupHighPriority {
				b.Lines(FormatTaskDetail(r, opts.AllFields)...)
			} else {
				b.Lines(FormatTask(r, opts.AllFields)...)
			}
		}
	}
	return b.String()
}

func (c *Client) FormatTaskStatus(ctx context.Context, filter store.Filter, opts StatusOptions) (string, error) {
	results, err := c.GetTaskData(ctx, filter)
	if err != nil {
		return "", err
	}
	return FormatTaskStatus(results, opts), nil
}
