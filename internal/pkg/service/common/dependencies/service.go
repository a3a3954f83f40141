package dependencies

import (
	"context"
	"io"

	"github.com/jonboulle/clockwork"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/etcdclient"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/servicectx"
	"github.com/jleaniz/turbinia/internal/pkg/telemetry"
)

// ServiceConfig contains options shared by the server and the worker.
type ServiceConfig struct {
	DebugLog             bool              `configKey:"debugLog" configUsage:"Enable debug log level."`
	LogFormat            string            `configKey:"logFormat" configUsage:"Log format, \"console\" or \"json\"." validate:"oneof=console json"`
	MetricsListenAddress string            `configKey:"metricsListenAddress" configUsage:"Listen address of the Prometheus /metrics endpoint, empty to disable."`
	Etcd                 etcdclient.Config `configKey:"etcd"`
}

func NewServiceConfig() ServiceConfig {
	return ServiceConfig{
		LogFormat:            string(log.LogFormatJSON),
		MetricsListenAddress: "0.0.0.0:9000",
		Etcd:                 etcdclient.NewConfig(),
	}
}

func (c *ServiceConfig) Normalize() {
	c.Etcd.Normalize()
}

func (c *ServiceConfig) Validate() error {
	if c.Etcd.Enabled() {
		return c.Etcd.Validate()
	}
	return nil
}

// NewServiceLogger creates the logger of a server or worker process.
func NewServiceLogger(w io.Writer, cfg ServiceConfig) log.Logger {
	format, _ := log.NewLogFormat(cfg.LogFormat)
	return log.NewServiceLogger(w, log.ServiceLoggerConfig{Format: format, Debug: cfg.DebugLog})
}

// NewServiceScope creates dependencies of a long-running process.
// Metrics are exposed on the configured address until the process is terminated.
func NewServiceScope(ctx context.Context, proc *servicectx.Process, logger log.Logger, cfg ServiceConfig) (BackendScope, error) {
	tel, registry, err := telemetry.NewWithPrometheus(tracenoop.NewTracerProvider())
	if err != nil {
		return nil, err
	}

	if cfg.MetricsListenAddress != "" {
		done, err := telemetry.ServeMetrics(proc.Ctx(), logger, cfg.MetricsListenAddress, registry)
		if err != nil {
			return nil, err
		}
		proc.Add(func(ctx context.Context, errCh chan<- error) {
			if err := <-done; err != nil && ctx.Err() == nil {
				errCh <- err
			}
		})
	}

	return NewBackendScope(ctx, NewBaseScope(logger, clockwork.NewRealClock(), tel, proc), cfg.Etcd)
}
