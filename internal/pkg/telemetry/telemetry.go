// Package telemetry provides tracing and metrics for the server and worker processes.
// Metrics are exported in the Prometheus format.
package telemetry

import (
	"context"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	appName             = "turbinia"
	metricsPath         = "/metrics"
	readHeaderTimeout   = 10 * time.Second
	metricsShutdownWait = 5 * time.Second
)

type Telemetry interface {
	Tracer() Tracer
	Meter() Meter
	// TracerProvider and MeterProvider are used to instrument third-party clients, for example the etcd gRPC connection.
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

type telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         Tracer
	meter          Meter
}

func New(tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) Telemetry {
	return &telemetry{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		tracer:         &tracer{tracer: tracerProvider.Tracer(appName)},
		meter:          &meter{meter: meterProvider.Meter(appName)},
	}
}

func NewNop() Telemetry {
	return New(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
}

// NewWithPrometheus creates telemetry whose metrics are collected by the returned registry.
func NewWithPrometheus(tracerProvider trace.TracerProvider) (Telemetry, *prom.Registry, error) {
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, errors.PrefixError(err, "cannot create prometheus exporter")
	}
	return New(tracerProvider, sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))), registry, nil
}

// ServeMetrics starts the HTTP endpoint, the server is stopped when the ctx is cancelled.
func ServeMetrics(ctx context.Context, logger log.Logger, listenAddr string, registry *prom.Registry) (<-chan error, error) {
	logger = logger.WithComponent("metrics")

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: listenAddr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	done := make(chan error, 1)
	go func() {
		logger.Infof(ctx, `metrics HTTP server listening on "%s%s"`, listenAddr, metricsPath)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
		close(done)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownWait)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf(shutdownCtx, `metrics HTTP server shutdown failed: %s`, err)
		}
	}()

	return done, nil
}

func (t *telemetry) Tracer() Tracer {
	return t.tracer
}

func (t *telemetry) Meter() Meter {
	return t.meter
}

func (t *telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

func (t *telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}
