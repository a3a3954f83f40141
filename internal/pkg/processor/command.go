package processor

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const commandWaitDelay = 5 * time.Second

// CommandError contains the output of a failed external program.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e CommandError) Error() string {
	msg := `command "` + e.Command + `" failed: ` + e.Err.Error()
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e CommandError) Unwrap() error {
	return e.Err
}

// RunCommand runs the program and returns trimmed stdout. Stderr is streamed to the debug log.
// The whole process group is killed when the ctx is cancelled.
func RunCommand(ctx context.Context, logger log.Logger, name string, args ...string) (string, error) {
	cmdline := strings.TrimSpace(name + " " + strings.Join(args, " "))
	logger.Debugf(ctx, `running "%s"`, cmdline)

	stderr := log.NewLevelWriter(ctx, logger, "debug")
	defer stderr.Flush()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative PID targets the process group
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = commandWaitDelay

	if err := cmd.Run(); err != nil {
		return "", errors.WithStack(CommandError{Command: cmdline, Output: strings.TrimSpace(stdout.String()), Err: err})
	}
	return strings.TrimSpace(stdout.String()), nil
}
