package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ForTest records spans and metrics in memory.
type ForTest struct {
	Telemetry
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func NewForTest(t testing.TB) *ForTest {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tracerProvider.Shutdown(context.Background())
		_ = meterProvider.Shutdown(context.Background())
	})
	return &ForTest{Telemetry: New(tracerProvider, meterProvider), spans: spans, reader: reader}
}

// EndedSpanNames returns names of finished spans in the order they ended.
func (v *ForTest) EndedSpanNames() []string {
	var out []string
	for _, s := range v.spans.Ended() {
		out = append(out, s.Name())
	}
	return out
}

func (v *ForTest) EndedSpans() []sdktrace.ReadOnlySpan {
	return v.spans.Ended()
}

// Int64Sum returns the total of the counter across all attribute sets.
func (v *ForTest) Int64Sum(t testing.TB, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := v.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
