package dependencies

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/servicectx"
	"github.com/jleaniz/turbinia/internal/pkg/telemetry"
)

// mocked dependencies container implements Mocked interface.
type mocked struct {
	*backendScope
	debugLogger log.DebugLogger
	telemetry   *telemetry.ForTest
	clock       *clockwork.FakeClock
}

type MockedConfig struct {
	realClock bool
}

type MockedOption func(c *MockedConfig)

// WithRealClock replaces the default fake clock, for tests running the service loops.
func WithRealClock() MockedOption {
	return func(c *MockedConfig) {
		c.realClock = true
	}
}

// NewMocked creates dependencies with in-memory queues and store, a debug logger and recorded telemetry.
func NewMocked(t *testing.T, opts ...MockedOption) Mocked {
	t.Helper()

	cfg := MockedConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	var clock clockwork.Clock = fakeClock
	if cfg.realClock {
		clock = clockwork.NewRealClock()
	}

	logger := log.NewDebugLogger()
	tel := telemetry.NewForTest(t)
	base := newBaseScope(logger, clock, tel, servicectx.NewForTest(t))
	return &mocked{
		backendScope: newMemoryBackendScope(base),
		debugLogger:  logger,
		telemetry:    tel,
		clock:        fakeClock,
	}
}

func (v *mocked) DebugLogger() log.DebugLogger {
	return v.debugLogger
}

func (v *mocked) TestTelemetry() *telemetry.ForTest {
	return v.telemetry
}

// FakeClock returns the fake clock, it is not used by the services if WithRealClock is set.
func (v *mocked) FakeClock() *clockwork.FakeClock {
	return v.clock
}
