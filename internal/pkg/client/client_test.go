package client

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/message"
	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/store/memory"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
	transportMemory "github.com/jleaniz/turbinia/internal/pkg/transport/memory"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) // nolint: gochecknoglobals

type testResult struct {
	name      string
	requestID string
	worker    string
	user      string
	runTime   time.Duration
	// stop is an offset from baseTime
	stop       time.Duration
	successful *bool
	priority   task.Priority
}

func boolPtr(v bool) *bool {
	return &v
}

func (tr testResult) build(id string) *task.Result {
	t := task.New(tr.name, "TestJob", evidence.NewRawDisk("/disk.raw"))
	t.ID = id
	t.RequestID = tr.requestID
	t.Requester = tr.user
	clock := clockwork.NewFakeClockAt(baseTime.Add(tr.stop - tr.runTime))
	r := task.NewResult(t, clock)
	r.WorkerName = tr.worker
	if tr.priority != 0 {
		r.ReportPriority = tr.priority
	}
	if tr.successful != nil {
		r.Start(tr.worker)
		clock.Advance(tr.runTime)
		status := task.StatusCompleted
		if !*tr.successful {
			status = "Task failed"
		}
		r.Close(*tr.successful, status)
	}
	return r
}

func newTestClient(t *testing.T, logger log.Logger, clock clockwork.Clock, results ...*task.Result) (*Client, store.TaskStore) {
	t.Helper()
	s := memory.New()
	for _, r := range results {
		require.NoError(t, s.Put(context.Background(), r))
	}
	channel := message.NewChannel(logger, transportMemory.NewQueue(transport.RequestsQueue))
	return New(logger, clock, s, channel), s
}

func TestStats_Median(t *testing.T) {
	t.Parallel()

	s := NewStats("odd")
	for _, v := range []int{30, 10, 20} {
		s.Add(time.Duration(v) * time.Second)
	}
	s.Calculate()
	assert.Equal(t, 10*time.Second, s.Min)
	assert.Equal(t, 20*time.Second, s.Mean)
	assert.Equal(t, 30*time.Second, s.Max)

	// The element at index count/2 is used, not the average of 25s
	s = NewStats("even")
	for _, v := range []int{40, 10, 30, 20} {
		s.Add(time.Duration(v) * time.Second)
	}
	s.Calculate()
	assert.Equal(t, 30*time.Second, s.Mean)
	assert.Equal(t, "even: Count: 4, Min: 10s, Mean: 30s, Max: 40s", s.Format())

	// Sub-second part is truncated
	s = NewStats("truncated")
	s.Add(1500 * time.Millisecond)
	s.Calculate()
	assert.Equal(t, "truncated, 1, 1s, 1s, 1s", s.FormatCSV())

	assert.Equal(t, "empty: Count: 0, Min: None, Mean: None, Max: None", NewStats("empty").Format())
}

func TestClient_GetTaskStatistics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	results := []*task.Result{
		testResult{name: "FsstatTask", requestID: "r1", worker: "w1", user: "alice", runTime: 10 * time.Second, stop: 20 * time.Second, successful: boolPtr(true)}.build("t1"),
		testResult{name: "FsstatTask", requestID: "r1", worker: "w2", user: "alice", runTime: 30 * time.Second, stop: 60 * time.Second, successful: boolPtr(false)}.build("t2"),
		testResult{name: "StringsAsciiTask", requestID: "r2", worker: "w1", user: "bob", runTime: 20 * time.Second, stop: 100 * time.Second, successful: boolPtr(true)}.build("t3"),
		// No run time, ignored
		testResult{name: "PlasoParserTask", requestID: "r2", worker: "", user: "bob"}.build("t4"),
	}
	c, _ := newTestClient(t, log.NewNopLogger(), clockwork.NewFakeClock(), results...)

	stats, err := c.GetTaskStatistics(ctx, store.Filter{})
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.AllTasks.Count())
	assert.Equal(t, 2, stats.SuccessfulTasks.Count())
	assert.Equal(t, 1, stats.FailedTasks.Count())
	assert.Len(t, stats.TasksPerType, 2)
	assert.Equal(t, 2, stats.TasksPerWorker["w1"].Count())
	assert.Equal(t, 1, stats.TasksPerUser["bob"].Count())

	// r1 spans from 10s (t1 start) to 60s (t2 stop), r2 is one task of 20s
	assert.Equal(t, 2, stats.Requests.Count())
	assert.Equal(t, 20*time.Second, stats.Requests.Min)
	assert.Equal(t, 50*time.Second, stats.Requests.Max)

	csv, err := c.FormatTaskStatistics(ctx, store.Filter{}, true)
	require.NoError(t, err)
	expected := `
stat_type, count, min, mean, max
All Tasks, 3, 10s, 20s, 30s
Successful Tasks, 2, 10s, 20s, 20s
Failed Tasks, 1, 30s, 30s, 30s
Total Request Time, 2, 20s, 50s, 50s
Task type FsstatTask, 2, 10s, 30s, 30s
Task type StringsAsciiTask, 1, 20s, 20s, 20s
Worker w1, 2, 10s, 20s, 20s
Worker w2, 1, 30s, 30s, 30s
User alice, 2, 10s, 30s, 30s
User bob, 1, 20s, 20s, 20s
`
	assert.Equal(t, strings.TrimLeft(expected, "\n"), csv)

	text, err := c.FormatTaskStatistics(ctx, store.Filter{RequestID: "missing"}, false)
	require.NoError(t, err)
	assert.Equal(t, "No tasks found", text)
}

func TestClient_WaitForRequest(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClockAt(baseTime)
	logger := log.NewDebugLogger()
	r1 := testResult{name: "TaskA", requestID: "r1", user: "alice"}.build("t1")
	r2 := testResult{name: "TaskB", requestID: "r1", user: "alice"}.build("t2")
	c, s := newTestClient(t, logger, clock, r1, r2)

	done := make(chan error, 1)
	go func() {
		done <- c.WaitForRequest(ctx, "r1", "", time.Minute)
	}()

	// Second poll without a change
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	// One task finished
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	r1.WithClock(clock).Close(true, "done")
	require.NoError(t, s.Put(ctx, r1))
	clock.Advance(time.Minute)

	// All tasks finished
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	r2.WithClock(clock).Close(false, "failed")
	require.NoError(t, s.Put(ctx, r2))
	clock.Advance(time.Minute)

	require.NoError(t, <-done)
	assert.Equal(t, strings.TrimLeft(`
INFO  Tasks completed (0/2): [], waiting for [TaskA, TaskB].
INFO  Tasks completed (1/2): [TaskA], waiting for [TaskB].
INFO  All 2 Tasks completed
`, "\n"), logger.InfoMessages())
	assert.Equal(t, "DEBUG  Tasks completed (0/2): [], waiting for [TaskA, TaskB].\n", logger.DebugMessages())
}

func TestClient_WaitForRequest_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())

	clock := clockwork.NewFakeClock()
	c, _ := newTestClient(t, log.NewNopLogger(), clock, testResult{name: "TaskA", requestID: "r1"}.build("t1"))

	done := make(chan error, 1)
	go func() {
		done <- c.WaitForRequest(ctx, "r1", "", time.Minute)
	}()
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestClient_CloseTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := clockwork.NewFakeClockAt(baseTime)
	c, _ := newTestClient(t, log.NewNopLogger(), clock,
		testResult{name: "TaskA", requestID: "r1", user: "alice"}.build("t1"),
		testResult{name: "TaskB", requestID: "r1", user: "alice", runTime: time.Second, stop: time.Second, successful: boolPtr(true)}.build("t2"),
		testResult{name: "TaskC", requestID: "r2", user: "alice"}.build("t3"),
	)

	_, err := c.CloseTasks(ctx, store.Filter{}, "admin")
	require.Error(t, err)

	closed, err := c.CloseTasks(ctx, store.Filter{RequestID: "r1"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, closed)

	results, err := c.GetTaskData(ctx, store.Filter{TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsFailed())
	assert.Equal(t, "Task closed by requester admin", results[0].Status)
}

func TestFormatTaskStatus(t *testing.T) {
	t.Parallel()

	high := testResult{name: "YaraAnalysisTask", requestID: "r1", worker: "w1", user: "alice", runTime: time.Second, stop: time.Second, successful: boolPtr(true), priority: task.PriorityHigh}.build("t1")
	high.ReportData = "#### Found 1 Yara rule match(es)\n* /etc/shadow: rule1"
	high.SavedPaths = []string{"/out/yara_matches.txt"}
	ok := testResult{name: "FsstatTask", requestID: "r1", worker: "w1", user: "alice", runTime: time.Second, stop: time.Second, successful: boolPtr(true)}.build("t2")
	ok.Status = "Completed"
	running := testResult{name: "PlasoParserTask", requestID: "r1", user: "alice"}.build("t3")

	out := FormatTaskStatus([]*task.Result{ok, running, high}, StatusOptions{FullReport: true, AllFields: true, PriorityFilter: task.PriorityHigh})
	expected := `
# Turbinia report r1
* Processed 3 Tasks for user alice

# High Priority Tasks
## YaraAnalysisTask
* **Status:** Task completed successfully
* Task Id: t1
* Executed on worker w1

### Task Reported Data
#### Found 1 Yara rule match(es)
* /etc/shadow: rule1

### Saved Task Files:
` + "* `/out/yara_matches.txt`" + `


# Successful Tasks
* FsstatTask: Completed


# Failed Tasks
* None

# Scheduled or Running Tasks
* PlasoParserTask: Task scheduled

`
	// With all fields, each task ends by an empty line
	assert.Equal(t, strings.TrimSuffix(expected, "\n"), out)
	assert.Empty(t, FormatTaskStatus(nil, DefaultStatusOptions()))
}
