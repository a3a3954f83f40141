// Command worker-lockcheck waits until the worker does not run any task.
//
// It acquires the worker lock with the timeout equal to the longest run time of the enabled jobs.
// It is intended as a pre-stop hook of the worker container, so the worker is terminated gracefully.
// The command exits with zero code also on timeout.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/config"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/dependencies"
	"github.com/jleaniz/turbinia/internal/pkg/service/worker"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const fallbackTimeout = time.Hour

type Config struct {
	DebugLog  bool          `configKey:"debugLog" configUsage:"Enable debug log level."`
	LogFormat string        `configKey:"logFormat" configUsage:"Log format, \"console\" or \"json\"." validate:"oneof=console json"`
	Worker    worker.Config `configKey:"worker"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %s\n", err.Error()) // nolint:forbidigo
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// The worker configuration is shared, so the same ENVs and config file can be used.
	cfg := &Config{LogFormat: string(log.LogFormatJSON), Worker: worker.NewConfig()}
	err := config.Bind(ctx, config.BindSpec{Name: "worker-lockcheck", Args: os.Args[1:]}, cfg)
	var helpErr config.HelpError
	if errors.As(err, &helpErr) {
		fmt.Println(helpErr.Help) // nolint:forbidigo
		return nil
	} else if err != nil {
		return err
	}

	serviceCfg := dependencies.NewServiceConfig()
	serviceCfg.DebugLog = cfg.DebugLog
	serviceCfg.LogFormat = cfg.LogFormat
	logger := dependencies.NewServiceLogger(os.Stderr, serviceCfg).WithComponent("worker-lockcheck")

	timeout, err := worker.LockWaitTimeout(ctx, logger, cfg.Worker, fallbackTimeout)
	if err != nil {
		return err
	}
	logger.Infof(ctx, "Set max timeout: %s", timeout)

	_, err = worker.WaitForIdle(ctx, logger, cfg.Worker.LockFile, timeout)
	return err
}
