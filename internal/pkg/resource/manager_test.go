package resource

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/duration"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

var _ evidence.ResourceTracker = (*Manager)(nil)

func newManagerForTest(t *testing.T, timeout time.Duration) *Manager {
	t.Helper()
	dir := t.TempDir()
	return NewManager(log.NewNopLogger(), Config{
		StateFile:   filepath.Join(dir, "state.json"),
		LockFile:    filepath.Join(dir, "state.lock"),
		LockTimeout: duration.From(timeout),
	})
}

func TestManager_ConcurrentClaims(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManagerForTest(t, 10*time.Second)
	const n = 20

	wg := &sync.WaitGroup{}
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.PreprocessResourceState(ctx, "disk-1", fmt.Sprintf("task%d", i)))
		}()
	}
	wg.Wait()

	state, err := m.State(ctx)
	require.NoError(t, err)
	assert.Len(t, state["disk-1"], n)

	// Release in a random order, only the last release is detachable
	order := rand.Perm(n)
	detachableCount := atomic.NewInt64(0)
	teardownCount := atomic.NewInt64(0)
	for _, i := range order {
		wg.Add(1)
		go func() {
			defer wg.Done()
			detachable, err := m.Release(ctx, "disk-1", fmt.Sprintf("task%d", i), func(context.Context) error {
				teardownCount.Inc()
				return nil
			})
			assert.NoError(t, err)
			if detachable {
				detachableCount.Inc()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), detachableCount.Load())
	assert.Equal(t, int64(1), teardownCount.Load())
	state, err = m.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestManager_PostProcessResourceState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManagerForTest(t, time.Second)

	require.NoError(t, m.PreprocessResourceState(ctx, "disk-1", "task1"))
	require.NoError(t, m.PreprocessResourceState(ctx, "disk-1", "task1"))
	require.NoError(t, m.PreprocessResourceState(ctx, "disk-1", "task2"))
	require.NoError(t, m.PreprocessResourceState(ctx, "disk-2", "task3"))

	state, err := m.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{"disk-1": {"task1", "task2"}, "disk-2": {"task3"}}, state)

	detachable, err := m.PostProcessResourceState(ctx, "disk-1", "task2")
	require.NoError(t, err)
	assert.False(t, detachable)

	detachable, err = m.PostProcessResourceState(ctx, "disk-1", "task1")
	require.NoError(t, err)
	assert.True(t, detachable)

	// The file is readable JSON
	data, err := os.ReadFile(m.config.StateFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"disk-2": ["task3"]}`, string(data))
}

func TestManager_ReleaseTeardownError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManagerForTest(t, time.Second)
	require.NoError(t, m.PreprocessResourceState(ctx, "disk-1", "task1"))

	detachable, err := m.Release(ctx, "disk-1", "task1", func(context.Context) error {
		return errors.New("detach failed")
	})
	assert.True(t, detachable)
	require.Error(t, err)
	assert.Equal(t, "detach failed", err.Error())

	// The lock was released
	require.NoError(t, m.PreprocessResourceState(ctx, "disk-1", "task2"))
}

func TestManager_LockTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManagerForTest(t, 200*time.Millisecond)

	unlock, err := AcquireFileLock(ctx, m.config.LockFile, time.Second)
	require.NoError(t, err)

	err = m.PreprocessResourceState(ctx, "disk-1", "task1")
	require.Error(t, err)
	var timeoutErr LockTimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, m.config.LockFile, timeoutErr.Path)
	assert.Contains(t, err.Error(), "timeout after 200ms")

	require.NoError(t, unlock())
	require.NoError(t, m.PreprocessResourceState(ctx, "disk-1", "task1"))
}

func TestManager_InvalidStateFile(t *testing.T) {
	t.Parallel()

	m := newManagerForTest(t, time.Second)
	require.NoError(t, os.WriteFile(m.config.StateFile, []byte("{invalid"), 0o600))

	err := m.PreprocessResourceState(context.Background(), "disk-1", "task1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot decode resource state")
}

func TestAcquireFileLock_Canceled(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "worker.lock")
	unlock, err := AcquireFileLock(context.Background(), path, time.Second)
	require.NoError(t, err)
	defer func() { assert.NoError(t, unlock()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = AcquireFileLock(ctx, path, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAcquireFileLock_TimeoutClosesFile(t *testing.T) {
	t.Parallel()

	if _, err := os.Stat("/proc/self/fd"); err != nil {
		t.Skip("/proc/self/fd is not available")
	}

	path := filepath.Join(t.TempDir(), "worker.lock")
	unlock, err := AcquireFileLock(context.Background(), path, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, openFiles(t, path))

	for range 5 {
		_, err = AcquireFileLock(context.Background(), path, 10*time.Millisecond)
		var timeoutErr LockTimeoutError
		require.ErrorAs(t, err, &timeoutErr)
	}
	assert.Equal(t, 1, openFiles(t, path))

	require.NoError(t, unlock())
	assert.Equal(t, 0, openFiles(t, path))
}

// openFiles counts descriptors of the process pointing to the path.
func openFiles(t *testing.T, path string) int {
	t.Helper()
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	count := 0
	for _, entry := range entries {
		if target, err := os.Readlink(filepath.Join("/proc/self/fd", entry.Name())); err == nil && target == path {
			count++
		}
	}
	return count
}
