package client

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/task"
)

// Stats are run time statistics of a group of tasks.
// Mean is the middle element of sorted run times, it is the element at index count/2, not an average.
type Stats struct {
	Description string
	Min         time.Duration
	Mean        time.Duration
	Max         time.Duration
	runTimes    []time.Duration
}

// TaskStatistics groups tasks by outcome, request, type, worker and user.
// Requests contains the span of each request, from the earliest start to the latest stop of its tasks.
type TaskStatistics struct {
	AllTasks        *Stats
	SuccessfulTasks *Stats
	FailedTasks     *Stats
	Requests        *Stats
	TasksPerType    map[string]*Stats
	TasksPerWorker  map[string]*Stats
	TasksPerUser    map[string]*Stats
}

func NewStats(description string) *Stats {
	return &Stats{Description: description}
}

func (s *Stats) Count() int {
	return len(s.runTimes)
}

func (s *Stats) Add(runTime time.Duration) {
	s.runTimes = append(s.runTimes, runTime)
}

// Calculate sets Min, Mean and Max, sub-second parts are truncated.
func (s *Stats) Calculate() {
	if len(s.runTimes) == 0 {
		return
	}
	sorted := slices.Clone(s.runTimes)
	slices.Sort(sorted)
	s.Min = sorted[0].Truncate(time.Second)
	s.Max = sorted[len(sorted)-1].Truncate(time.Second)
	s.Mean = sorted[len(sorted)/2].Truncate(time.Second)
}

func (s *Stats) values() (string, string, string) {
	if len(s.runTimes) == 0 {
		return "None", "None", "None"
	}
	return s.Min.String(), s.Mean.String(), s.Max.String()
}

func (s *Stats) Format() string {
	minV, meanV, maxV := s.values()
	return fmt.Sprintf("%s: Count: %d, Min: %s, Mean: %s, Max: %s", s.Description, s.Count(), minV, meanV, maxV)
}

func (s *Stats) FormatCSV() string {
	minV, meanV, maxV := s.values()
	return fmt.Sprintf("%s, %d, %s, %s, %s", s.Description, s.Count(), minV, meanV, maxV)
}

// CalculateStatistics computes statistics of the results, results without a run time are ignored.
// It returns nil for an empty input.
func CalculateStatistics(results []*task.Result) *TaskStatistics {
	if len(results) == 0 {
		return nil
	}

	stats := &TaskStatistics{
		AllTasks:        NewStats("All Tasks"),
		SuccessfulTasks: NewStats("Successful Tasks"),
		FailedTasks:     NewStats("Failed Tasks"),
		Requests:        NewStats("Total Request Time"),
		TasksPerType:    make(map[string]*Stats),
		TasksPerWorker:  make(map[string]*Stats),
		TasksPerUser:    make(map[string]*Stats),
	}

	group := func(m map[string]*Stats, key, description string) *Stats {
		s, found := m[key]
		if !found {
			s = NewStats(description)
			m[key] = s
		}
		return s
	}

	type span struct{ start, stop time.Time }
	requests := make(map[string]*span)
	var requestOrder []string

	for _, r := range results {
		runTime := r.RunTime.Duration()
		if runTime == 0 {
			continue
		}

		stats.AllTasks.Add(runTime)
		switch {
		case r.IsSuccessful():
			stats.SuccessfulTasks.Add(runTime)
		case r.IsFailed():
			stats.FailedTasks.Add(runTime)
		}
		group(stats.TasksPerType, r.Name, "Task type "+r.Name).Add(runTime)
		group(stats.TasksPerWorker, r.WorkerName, "Worker "+r.WorkerName).Add(runTime)
		group(stats.TasksPerUser, r.Requester, "User "+r.Requester).Add(runTime)

		start, stop := r.StartTime(), r.LastUpdate.Time()
		if s, found := requests[r.RequestID]; found {
			if start.Before(s.start) {
				s.start = start
			}
			if stop.After(s.stop) {
				s.stop = stop
			}
		} else {
			requests[r.RequestID] = &span{start: start, stop: stop}
			requestOrder = append(requestOrder, r.RequestID)
		}
	}

	for _, id := range requestOrder {
		stats.Requests.Add(requests[id].stop.Sub(requests[id].start))
	}

	for _, s := range stats.all() {
		s.Calculate()
	}
	return stats
}

// all returns each Stats in the report order, groups are sorted by description.
func (ts *TaskStatistics) all() []*Stats {
	out := []*Stats{ts.AllTasks, ts.SuccessfulTasks, ts.FailedTasks, ts.Requests}
	for _, m := range []map[string]*Stats{ts.TasksPerType, ts.TasksPerWorker, ts.TasksPerUser} {
		group := make([]*Stats, 0, len(m))
		for _, s := range m {
			group = append(group, s)
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Description < group[j].Description })
		out = append(out, group...)
	}
	return out
}

func (c *Client) GetTaskStatistics(ctx context.Context, filter store.Filter) (*TaskStatistics, error) {
	results, err := c.GetTaskData(ctx, filter)
	if err != nil {
		return nil, err
	}
	return CalculateStatistics(results), nil
}

func (c *Client) FormatTaskStatistics(ctx context.Context, filter store.Filter, csv bool) (string, error) {
	stats, err := c.GetTaskStatistics(ctx, filter)
	if err != nil {
		return "", err
	}
	return FormatStatistics(stats, csv), nil
}

func FormatStatistics(stats *TaskStatistics, csv bool) string {
	if stats == nil {
		return "No tasks found"
	}

	var lines []string
	if csv {
		lines = append(lines, "stat_type, count, min, mean, max")
	} else {
		lines = append(lines, "Execution time statistics for Turbinia:", "")
	}
	for _, s := range stats.all() {
		if csv {
			lines = append(lines, s.FormatCSV())
		} else {
			lines = append(lines, s.Format())
		}
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}
