package servicectx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

func TestProcess_Add(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.NewDebugLogger()
	proc, err := New(ctx, cancel, logger, WithUniqueID("<id>"))
	require.NoError(t, err)

	// Operations run in parallel, sleep determines the completion order
	proc.Add(func(ctx context.Context, errCh chan<- error) {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		logger.Info(ctx, "end1")
	})
	proc.Add(func(ctx context.Context, errCh chan<- error) {
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		logger.Info(ctx, "end2")
	})
	proc.Add(func(ctx context.Context, errCh chan<- error) {
		errCh <- errors.New("operation failed")
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown1")
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown2")
	})
	proc.WaitForShutdown()

	expected := `
INFO  process unique id "<id>"
INFO  exiting (operation failed)
INFO  onShutdown2
INFO  onShutdown1
INFO  end1
INFO  end2
INFO  exited
`
	assert.Equal(t, strings.TrimLeft(expected, "\n"), logger.AllMessagesTxt())
}

func TestProcess_Shutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.NewDebugLogger()
	proc, err := New(ctx, cancel, logger, WithUniqueID("<id>"))
	require.NoError(t, err)

	proc.Add(func(ctx context.Context, errCh chan<- error) {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		logger.Info(ctx, "end")
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown")
	})
	proc.Shutdown(errors.New("some error"))
	proc.WaitForShutdown()

	logger.AssertJSONMessages(t, `
{"level":"info","message":"process unique id \"<id>\"","process.id":"<id>"}
{"level":"info","message":"exiting (some error)"}
{"level":"info","message":"onShutdown"}
{"level":"info","message":"end"}
{"level":"info","message":"exited"}
`)
}

func TestProcess_LateErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.NewDebugLogger()
	proc, err := New(ctx, cancel, logger, WithUniqueID("<id>"))
	require.NoError(t, err)

	// The second operation must not block after the process is stopping
	proc.Add(func(ctx context.Context, errCh chan<- error) {
		errCh <- errors.New("first")
	})
	proc.Add(func(ctx context.Context, errCh chan<- error) {
		<-ctx.Done()
		errCh <- errors.New("second")
	})
	proc.WaitForShutdown()

	assert.Contains(t, logger.InfoMessages(), "exiting (first)")
	assert.Eventually(t, func() bool {
		return strings.Contains(logger.WarnMessages(), "process is already stopping, error ignored: second")
	}, time.Second, 10*time.Millisecond)
}
