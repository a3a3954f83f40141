package task

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// Command is an external program run by a task.
type Command struct {
	Name string
	Args []string
	// OutputFile receives stdout, if it is set.
	OutputFile string
}

// Executor runs external programs of tasks.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (stdout string, err error)
}

type LocalExecutor struct {
	logger log.Logger
}

// RecordingExecutor does not run anything, it returns configured outputs.
type RecordingExecutor struct {
	lock    sync.Mutex
	calls   []string
	outputs map[string]string
	errors  map[string]error
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

func NewLocalExecutor(logger log.Logger) *LocalExecutor {
	return &LocalExecutor{logger: logger.WithComponent("executor")}
}

func (e *LocalExecutor) Execute(ctx context.Context, cmd Command) (string, error) {
	out, err := processor.RunCommand(ctx, e.logger, cmd.Name, cmd.Args...)
	if err != nil {
		return "", err
	}
	if cmd.OutputFile != "" {
		if err := os.WriteFile(cmd.OutputFile, []byte(out+"\n"), 0o640); err != nil {
			return "", errors.PrefixErrorf(err, `cannot write output of "%s"`, cmd.Name)
		}
	}
	return out, nil
}

func NewRecordingExecutor() *RecordingExecutor {
	return &RecordingExecutor{outputs: make(map[string]string), errors: make(map[string]error)}
}

// SetOutput sets stdout of the program.
func (e *RecordingExecutor) SetOutput(program, stdout string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.outputs[program] = stdout
}

func (e *RecordingExecutor) FailOn(program string, err error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.errors[program] = err
}

// Calls returns executed command lines.
func (e *RecordingExecutor) Calls() []string {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *RecordingExecutor) Execute(_ context.Context, cmd Command) (string, error) {
	e.lock.Lock()
	e.calls = append(e.calls, cmd.String())
	out, err := e.outputs[cmd.Name], e.errors[cmd.Name]
	e.lock.Unlock()

	if err != nil {
		return "", err
	}
	if cmd.OutputFile != "" {
		if err := os.WriteFile(cmd.OutputFile, []byte(out), 0o640); err != nil {
			return "", errors.WithStack(err)
		}
	}
	return out, nil
}
