// Package dependencies provides dependencies containers shared by the server, the worker and the CLI.
//
// Dependency containers:
//   - [BaseScope] contains basic dependencies of each process.
//   - [BackendScope] adds queues and the task store, backed by etcd or by memory.
//   - [Mocked] implements all scopes for tests.
package dependencies

import (
	"github.com/jonboulle/clockwork"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/servicectx"
	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/telemetry"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
)

type BaseScope interface {
	Logger() log.Logger
	Clock() clockwork.Clock
	Telemetry() telemetry.Telemetry
	Process() *servicectx.Process
}

type BackendScope interface {
	BaseScope
	Transport() transport.Factory
	TaskStore() store.TaskStore
}

type Mocked interface {
	BackendScope
	DebugLogger() log.DebugLogger
	TestTelemetry() *telemetry.ForTest
	FakeClock() *clockwork.FakeClock
}
