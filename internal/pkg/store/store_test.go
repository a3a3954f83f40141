package store

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/task"
)

func TestShouldReplace(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	pending := task.NewResult(task.New("A", "B", evidence.NewTextFile("/a")), clock)
	finished := task.NewResult(task.New("A", "B", evidence.NewTextFile("/a")), clock)
	finished.Close(false, "failed")

	assert.True(t, ShouldReplace(nil, pending))
	assert.True(t, ShouldReplace(pending, pending))
	assert.True(t, ShouldReplace(pending, finished))
	assert.True(t, ShouldReplace(finished, finished))
	assert.False(t, ShouldReplace(finished, pending))
}

func TestFilter_Since(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := task.NewResult(task.New("A", "B", evidence.NewTextFile("/a")), clockwork.NewFakeClockAt(now))
	assert.True(t, Filter{Since: now}.Match(r))
	assert.False(t, Filter{Since: now.Add(time.Second)}.Match(r))
	assert.False(t, Filter{User: "alice"}.Match(r))
}
