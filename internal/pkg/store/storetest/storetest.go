// Package storetest contains tests shared by all task store implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/task"
)

func newResult(clock clockwork.Clock, id, requestID, user string) *task.Result {
	t := task.New("FsstatTask", "FsstatJob", evidence.NewRawDisk("/disk.raw"))
	t.ID = id
	t.RequestID = requestID
	t.Requester = user
	return task.NewResult(t, clock)
}

func ids(results []*task.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}

// Run tests the store, the store must be empty.
func Run(t *testing.T, s store.TaskStore) {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	r1 := newResult(clock, "task1", "request1", "alice")
	require.NoError(t, s.Put(ctx, r1))
	clock.Advance(time.Minute)
	r2 := newResult(clock, "task2", "request1", "bob")
	require.NoError(t, s.Put(ctx, r2))
	clock.Advance(time.Minute)
	r3 := newResult(clock, "task3", "request2", "alice")
	require.NoError(t, s.Put(ctx, r3))

	// Filters
	all, err := s.List(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"task1", "task2", "task3"}, ids(all))

	byRequest, err := s.List(ctx, store.Filter{RequestID: "request1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"task1", "task2"}, ids(byRequest))

	byUser, err := s.List(ctx, store.Filter{User: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"task1", "task3"}, ids(byUser))

	byTask, err := s.List(ctx, store.Filter{RequestID: "request1", TaskID: "task2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"task2"}, ids(byTask))

	since, err := s.List(ctx, store.Filter{Since: r2.LastUpdate.Time()})
	require.NoError(t, err)
	assert.Equal(t, []string{"task2", "task3"}, ids(since))

	// Finished result replaces the pending one, with its output evidence
	clock.Advance(time.Minute)
	r1.Start("worker1")
	clock.Advance(10 * time.Second)
	r1.AddEvidence(evidence.NewReportText("report"))
	r1.Close(true, "done")
	require.NoError(t, s.Put(ctx, r1))

	// Late pending update is ignored
	late := newResult(clock, "task1", "request1", "alice")
	require.NoError(t, s.Put(ctx, late))

	stored, err := s.List(ctx, store.Filter{TaskID: "task1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IsSuccessful())
	assert.Equal(t, "done", stored[0].Status)
	assert.Equal(t, 10*time.Second, stored[0].RunTime.Duration())
	assert.Equal(t, "worker1", stored[0].WorkerName)
	require.Len(t, stored[0].Evidence, 1)
	assert.Equal(t, evidence.TypeReportText, stored[0].Evidence[0].Type())

	// Missing id
	require.Error(t, s.Put(ctx, &task.Result{}))
}
