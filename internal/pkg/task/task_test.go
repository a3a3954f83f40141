package task

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type testDefinition struct {
	run func(ctx context.Context, rc *RunContext, e evidence.Evidence, result *Result) error
}

func (d *testDefinition) Name() string {
	return "TestTask"
}

func (d *testDefinition) RequiredStates() []evidence.State {
	return nil
}

func (d *testDefinition) Run(ctx context.Context, rc *RunContext, e evidence.Evidence, result *Result) error {
	return d.run(ctx, rc, e, result)
}

func newTestTask() *Task {
	t := New("TestTask", "TestJob", evidence.NewTextFile("/a.txt"))
	t.RequestID = "request1"
	return t
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	p, ok := ParsePriority("high")
	assert.True(t, ok)
	assert.Equal(t, PriorityHigh, p)
	assert.Equal(t, "HIGH", p.String())

	p, ok = ParsePriority("30")
	assert.True(t, ok)
	assert.Equal(t, Priority(30), p)
	assert.Equal(t, "30", p.String())

	_, ok = ParsePriority("urgent")
	assert.False(t, ok)
}

func TestResult_Lifecycle(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	task := newTestTask()

	result := NewResult(task, clock)
	assert.Equal(t, StatusPending, result.Status)
	assert.False(t, result.IsFinished())
	assert.Equal(t, "/a.txt", result.EvidenceName)

	result.Start("worker-1")
	clock.Advance(90 * time.Second)
	result.SetPriority(PriorityMedium)
	result.SetPriority(PriorityLow)
	result.Close(true, "")

	assert.True(t, result.IsSuccessful())
	assert.Equal(t, StatusRunning, result.Status)
	assert.Equal(t, PriorityMedium, result.ReportPriority)
	assert.Equal(t, 90*time.Second, result.RunTime.Duration())
	assert.Equal(t, "2024-01-02T03:05:35.000Z", result.LastUpdate.String())
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), result.StartTime())
}

func TestResult_JSON(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	result := NewResult(newTestTask(), clock)

	data, err := json.Encode(result, false)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Decode(data, &m))
	assert.Nil(t, m["successful"])
	assert.Equal(t, float64(80), m["report_priority"])

	result.Start("worker-1")
	clock.Advance(1500 * time.Millisecond)
	result.AddEvidence(evidence.NewReportText("report"))
	result.Close(false, "failed")

	data, err = json.Encode(result, false)
	require.NoError(t, err)
	decoded := &Result{}
	require.NoError(t, decoded.DecodeJSON(data))
	assert.True(t, decoded.IsFailed())
	assert.Equal(t, 1500*time.Millisecond, decoded.RunTime.Duration())
	require.Len(t, decoded.Evidence, 1)
	assert.IsType(t, &evidence.ReportText{}, decoded.Evidence[0])
}

func TestNewResult_DefaultClock(t *testing.T) {
	t.Parallel()

	result := NewResult(newTestTask(), nil)
	assert.False(t, result.LastUpdate.Time().IsZero())
	result.Start("worker-1")
	result.Close(true, "")
	assert.True(t, result.IsSuccessful())
}

func TestTask_DecodeJSON(t *testing.T) {
	t.Parallel()

	tsk := newTestTask()
	data, err := json.Encode(tsk, false)
	require.NoError(t, err)
	decoded := &Task{}
	require.NoError(t, decoded.DecodeJSON(data))
	assert.Equal(t, tsk.ID, decoded.ID)
	assert.Equal(t, "request1", decoded.RequestID)
	assert.Equal(t, "/a.txt", decoded.Evidence.Name())

	// Unknown evidence type
	data = []byte(`{"id": "t1", "name": "TestTask", "request_id": "r1", "evidence": {"type": "FloppyDisk"}}`)
	err = (&Task{}).DecodeJSON(data)
	require.Error(t, err)
	var decodeErr evidence.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "FloppyDisk", decodeErr.Type)
	assert.Equal(t, "evidence_decode", decodeErr.ErrorType())

	// The identification can be read anyway
	header, ok := DecodeTaskID(data)
	require.True(t, ok)
	assert.Equal(t, "t1", header.ID)
	assert.Equal(t, "TestTask", header.Name)
	assert.Equal(t, "r1", header.RequestID)
	_, ok = DecodeTaskID([]byte(`{"evidence": {}}`))
	assert.False(t, ok)

	// Result evidence
	err = (&Result{}).DecodeJSON([]byte(`{"id": "t1", "evidence": [{"type": "FloppyDisk"}]}`))
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, err.Error(), `cannot decode result of the task "t1"`)
}

func TestTask_RecipeValue(t *testing.T) {
	t.Parallel()

	task := newTestTask()
	task.Recipe = map[string]any{
		"globals":  map[string]any{"timeout": 10, "debug": true},
		"TestTask": map[string]any{"timeout": 20},
	}

	v, ok := task.RecipeValue("timeout")
	assert.True(t, ok)
	assert.Equal(t, 20, v)

	v, ok = task.RecipeValue("debug")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = task.RecipeValue("missing")
	assert.False(t, ok)
}

func TestTask_RecipeTypedValues(t *testing.T) {
	t.Parallel()

	task := newTestTask()
	task.Recipe = map[string]any{
		"globals":  map[string]any{"filter_patterns": []any{"(?i)password", "secret key"}, "debug_tasks": "true", "retries": 3},
		"TestTask": map[string]any{"parsers": "winreg"},
	}

	assert.Equal(t, []string{"(?i)password", "secret key"}, task.RecipeStrings("filter_patterns"))
	assert.Equal(t, []string{"winreg"}, task.RecipeStrings("parsers"))
	assert.Nil(t, task.RecipeStrings("missing"))
	assert.True(t, task.RecipeBool("debug_tasks"))
	assert.False(t, task.RecipeBool("missing"))
	assert.Equal(t, "3", task.RecipeString("retries"))
	assert.Equal(t, "", task.RecipeString("missing"))
}

func TestRun(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	task := newTestTask()
	rc := &RunContext{Task: task, Logger: log.NewNopLogger(), Executor: NewRecordingExecutor()}

	// Success, outputs are marked
	result := NewResult(task, clock)
	def := &testDefinition{run: func(ctx context.Context, rc *RunContext, e evidence.Evidence, result *Result) error {
		_, err := rc.Executor.Execute(ctx, Command{Name: "strings", Args: []string{"-a", e.Common().LocalPath}})
		result.AddEvidence(evidence.NewTextFile("/out.txt"))
		return err
	}}
	require.NoError(t, Run(context.Background(), def, rc, task.Evidence.Evidence, result))
	assert.True(t, result.IsSuccessful())
	assert.Equal(t, StatusCompleted, result.Status)
	out := result.Evidence[0].Common()
	assert.Equal(t, "request1", out.RequestID)
	assert.True(t, out.WasProcessedBy("TestJob"))
	assert.Equal(t, []string{"strings -a"}, rc.Executor.(*RecordingExecutor).Calls())

	// Error
	result = NewResult(task, clock)
	def.run = func(context.Context, *RunContext, evidence.Evidence, *Result) error {
		return errors.New("tool not found")
	}
	require.Error(t, Run(context.Background(), def, rc, task.Evidence.Evidence, result))
	assert.True(t, result.IsFailed())
	assert.Equal(t, "Task TestTask failed: tool not found", result.Status)
	assert.Contains(t, result.Error, "tool not found")

	// Panic
	result = NewResult(task, clock)
	def.run = func(context.Context, *RunContext, evidence.Evidence, *Result) error {
		panic("unexpected state")
	}
	err := Run(context.Background(), def, rc, task.Evidence.Evidence, result)
	require.Error(t, err)
	assert.Equal(t, "task panicked: unexpected state", err.Error())
	assert.True(t, result.IsFailed())
	assert.Contains(t, result.Error, "runtime/debug.Stack")
}

func TestRecordingExecutor_OutputFile(t *testing.T) {
	t.Parallel()

	executor := NewRecordingExecutor()
	executor.SetOutput("fsstat", "FILE SYSTEM INFORMATION")
	path := t.TempDir() + "/fsstat.txt"

	out, err := executor.Execute(context.Background(), Command{Name: "fsstat", Args: []string{"/dev/loop1"}, OutputFile: path})
	require.NoError(t, err)
	assert.Equal(t, "FILE SYSTEM INFORMATION", out)
	assert.FileExists(t, path)

	executor.FailOn("fsstat", errors.New("failed"))
	_, err = executor.Execute(context.Background(), Command{Name: "fsstat"})
	assert.Error(t, err)
	assert.Equal(t, []string{"fsstat /dev/loop1", "fsstat"}, executor.Calls())
}
