package log_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jleaniz/turbinia/internal/pkg/log"
)

func TestDebugLogger_AssertJSONMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	logger := log.NewDebugLogger()
	logger.WithComponent("worker").With(attribute.String("task.id", "abc123")).Infof(ctx, "Task %s started", "FsstatTask")
	logger.WithComponent("worker").WithComponent("lock").Warn(ctx, "lock timed out")

	logger.AssertJSONMessages(t, `
{"level":"info","message":"Task FsstatTask started","component":"worker","task.id":"%s"}
{"level":"warn","message":"lock %s","component":"worker.lock"}
`)

	// Order matters
	err := logger.CompareJSONMessages(`
{"level":"warn"}
{"level":"info"}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Expected:`)
}

func TestNewServiceLogger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var out bytes.Buffer
	logger := log.NewServiceLogger(&out, log.ServiceLoggerConfig{Format: log.LogFormatJSON})
	logger.Debug(ctx, "hidden")
	logger.WithComponent("server").Info(ctx, "visible")
	log.AssertJSONMessages(t, `{"level":"info","time":"%s","message":"visible","component":"server"}`, out.String())
	assert.NotContains(t, out.String(), "hidden")

	out.Reset()
	logger = log.NewServiceLogger(&out, log.ServiceLoggerConfig{Format: log.LogFormatConsole, Debug: true})
	logger.Debug(ctx, "shown")
	assert.Contains(t, out.String(), "DEBUG  shown")
}

func TestNewLogFormat(t *testing.T) {
	t.Parallel()

	format, err := log.NewLogFormat("json")
	require.NoError(t, err)
	assert.Equal(t, log.LogFormatJSON, format)

	format, err = log.NewLogFormat("xml")
	require.Error(t, err)
	assert.Equal(t, log.LogFormatConsole, format)
}
