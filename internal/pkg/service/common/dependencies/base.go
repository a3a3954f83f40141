package dependencies

import (
	"github.com/jonboulle/clockwork"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/servicectx"
	"github.com/jleaniz/turbinia/internal/pkg/telemetry"
)

// baseScope implements BaseScope interface.
type baseScope struct {
	logger    log.Logger
	clock     clockwork.Clock
	telemetry telemetry.Telemetry
	process   *servicectx.Process
}

func NewBaseScope(logger log.Logger, clock clockwork.Clock, tel telemetry.Telemetry, proc *servicectx.Process) BaseScope {
	return newBaseScope(logger, clock, tel, proc)
}

func newBaseScope(logger log.Logger, clock clockwork.Clock, tel telemetry.Telemetry, proc *servicectx.Process) *baseScope {
	if tel == nil {
		tel = telemetry.NewNop()
	}
	return &baseScope{logger: logger, clock: clock, telemetry: tel, process: proc}
}

func (v *baseScope) Logger() log.Logger {
	return v.logger
}

func (v *baseScope) Clock() clockwork.Clock {
	return v.clock
}

func (v *baseScope) Telemetry() telemetry.Telemetry {
	return v.telemetry
}

func (v *baseScope) Process() *servicectx.Process {
	return v.process
}
