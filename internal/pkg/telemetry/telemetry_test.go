package telemetry_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/telemetry"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

func TestSpan_End(t *testing.T) {
	t.Parallel()
	tel := telemetry.NewForTest(t)

	_, span1 := tel.Tracer().Start(context.Background(), "task.ok")
	var okErr error
	span1.End(&okErr)

	_, span2 := tel.Tracer().Start(context.Background(), "task.failed")
	failedErr := errors.New("some error")
	span2.End(&failedErr)

	assert.Equal(t, []string{"task.ok", "task.failed"}, tel.EndedSpanNames())
	spans := tel.EndedSpans()
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "some error", spans[1].Status().Description)
	assert.Contains(t, spans[1].Attributes(), attribute.String("error_type", "other"))
}

func TestMeter_Counter(t *testing.T) {
	t.Parallel()
	tel := telemetry.NewForTest(t)
	counter := tel.Meter().Counter("turbinia.tasks.processed", "Processed tasks.", "1")
	counter.Add(context.Background(), 2)
	counter.Add(context.Background(), 3)
	assert.Equal(t, int64(5), tel.Int64Sum(t, "turbinia.tasks.processed"))
}

func TestServeMetrics(t *testing.T) {
	t.Parallel()

	tel, registry, err := telemetry.NewWithPrometheus(tracenoop.NewTracerProvider())
	require.NoError(t, err)
	tel.Meter().Counter("turbinia.tasks.processed", "Processed tasks.", "1").Add(context.Background(), 1)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done, err := telemetry.ServeMetrics(ctx, log.NewNopLogger(), addr, registry)
	require.NoError(t, err)

	var body string
	assert.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics") // nolint: noctx
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, strings.Contains(body, "turbinia_tasks_processed"), body)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout")
	}
}
