package job

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/registry"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type testJob struct {
	Base
}

func (j *testJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	if j.IsFanIn {
		return NewTasks(j, evidence.NewEvidenceCollection(batch...), j.JobName+"Task")
	}
	return NewTasks(j, batch[0], j.JobName+"Task")
}

func newTestJob(name string, fanIn bool, input ...string) *testJob {
	return &testJob{Base: Base{JobName: name, Input: input, IsFanIn: fanIn}}
}

func newTestManager(t *testing.T, jobs ...Job) *Manager {
	t.Helper()
	m := NewManager(log.NewNopLogger())
	require.NoError(t, m.RegisterMany(jobs...))
	return m
}

func taskSummary(tasks []*task.Task) []string {
	var out []string
	for _, tk := range tasks {
		out = append(out, tk.JobName+" "+tk.Evidence.Name())
	}
	return out
}

func TestManager_Register(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newTestJob("J1", false, evidence.TypeRawDisk))

	err := m.Register(newTestJob("j1", false))
	require.Error(t, err)
	var alreadyErr registry.AlreadyRegisteredError
	assert.True(t, errors.As(err, &alreadyErr))

	// All or nothing
	err = m.RegisterMany(newTestJob("J2", false), newTestJob("J2", false))
	require.Error(t, err)
	err = m.RegisterMany(newTestJob("J3", false), newTestJob("J1", false))
	require.Error(t, err)
	assert.Equal(t, []string{"J1"}, m.Names())

	require.NoError(t, m.Deregister("J1"))
	assert.Empty(t, m.Names())
}

func TestManager_SelectAndExpand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestManager(t,
		newTestJob("J1", false, evidence.TypeRawDisk),
		newTestJob("J2", false, evidence.TypeTextFile, evidence.TypeRawDisk),
	)

	disk := evidence.NewRawDisk("/disk.raw")
	file := evidence.NewTextFile("/file.txt")

	names := func(jobs []Job) []string {
		var out []string
		for _, j := range jobs {
			out = append(out, j.Name())
		}
		return out
	}
	assert.Equal(t, []string{"J1", "J2"}, names(m.Select(disk)))
	assert.Equal(t, []string{"J2"}, names(m.Select(file)))

	tasks := m.Expand(ctx, []evidence.Evidence{disk, file})
	assert.Equal(t, []string{"J1 /disk.raw", "J2 /disk.raw", "J2 /file.txt"}, taskSummary(tasks))
	for _, tk := range tasks {
		assert.Equal(t, tk.JobName+"Task", tk.Name)
		assert.Len(t, tk.ID, 32)
	}
}

func TestManager_ExpandFanIn(t *testing.T) {
	t.Parallel()

	m := newTestManager(t,
		newTestJob("Grep", true, evidence.TypeTextFile, evidence.TypeBodyFile),
		newTestJob("Strings", false, evidence.TypeTextFile),
	)

	batch := []evidence.Evidence{
		evidence.NewTextFile("/a.txt"),
		evidence.NewBodyFile("/b.body", 1),
		evidence.NewRawDisk("/disk.raw"),
		evidence.NewTextFile("/c.txt"),
	}
	tasks := m.Expand(context.Background(), batch)
	require.Len(t, tasks, 3)

	collection, ok := tasks[0].Evidence.Evidence.(*evidence.EvidenceCollection)
	require.True(t, ok)
	assert.Len(t, collection.Collection, 3)
	assert.Equal(t, []string{"Strings /a.txt", "Strings /c.txt"}, taskSummary(tasks[1:]))
}

func TestManager_ExpandSkipsProcessedBy(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, newTestJob("Grep", false, evidence.TypeTextFile))
	output := evidence.NewTextFile("/grep.txt")
	output.MarkProcessedBy("grep")

	assert.Empty(t, m.Select(output))
	assert.Empty(t, m.Expand(context.Background(), []evidence.Evidence{output}))
}

func TestManager_Filter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	all := func() []Job {
		return []Job{newTestJob("A", false), newTestJob("B", false), newTestJob("C", false), newTestJob("D", false)}
	}

	m := newTestManager(t, all()...)
	require.NoError(t, m.Filter(ctx, nil, []string{"b"}, []string{"D"}))
	assert.Equal(t, []string{"A", "C"}, m.Names())

	// Allow list re-enables a disabled job
	m = newTestManager(t, all()...)
	require.NoError(t, m.Filter(ctx, []string{"A", "D"}, nil, []string{"D", "C"}))
	assert.Equal(t, []string{"A", "D"}, m.Names())

	m = newTestManager(t, all()...)
	err := m.Filter(ctx, []string{"A"}, []string{"B"}, nil)
	require.Error(t, err)
	assert.Equal(t, "jobs allow list and deny list cannot be used together", err.Error())

	err = m.Filter(ctx, nil, []string{"X"}, nil)
	require.Error(t, err)
	assert.Equal(t, `cannot filter jobs: job "X" is not registered`, err.Error())
	assert.Len(t, m.Names(), 4)
}

func TestCheckDependencies(t *testing.T) {
	t.Parallel()

	j1 := newTestJob("Plaso", false)
	j1.Programs = []string{"log2timeline.py", "sh"}
	j1.MaxRunTime = time.Hour
	j2 := newTestJob("Strings", false)
	j2.Programs = []string{"strings"}
	j2.MaxRunTime = time.Minute

	lookPath := func(program string) (string, error) {
		if program == "sh" {
			return "/bin/sh", nil
		}
		return "", exec.ErrNotFound
	}

	err := CheckDependencies([]Job{j1, j2}, nil, lookPath)
	require.Error(t, err)
	assert.Equal(t, `missing job dependencies: job "Plaso" requires "log2timeline.py"; job "Strings" requires "strings"`, err.Error())

	err = CheckDependencies([]Job{j1, j2}, map[string][]string{"plaso": {"sh"}, "Strings": nil}, lookPath)
	assert.NoError(t, err)

	assert.Equal(t, time.Hour, MaxTimeout([]Job{j1, j2}, time.Second))
	assert.Equal(t, time.Second, MaxTimeout(nil, time.Second))
}
