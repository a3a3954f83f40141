package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jleaniz/turbinia/internal/pkg/service/common/config"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/dependencies"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/servicectx"
	"github.com/jleaniz/turbinia/internal/pkg/service/worker"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type Config struct {
	dependencies.ServiceConfig `configKey:",squash"`
	Worker                     worker.Config `configKey:"worker"`
}

func (c *Config) Validate() error {
	errs := errors.NewMultiError()
	if err := c.ServiceConfig.Validate(); err != nil {
		errs.Append(err)
	}
	if err := c.Worker.Validate(); err != nil {
		errs.Append(err)
	}
	return errs.ErrorOrNil()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %s\n", err.Error()) // nolint:forbidigo
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration.
	cfg := &Config{ServiceConfig: dependencies.NewServiceConfig(), Worker: worker.NewConfig()}
	cfg.MetricsListenAddress = "0.0.0.0:9001"
	err := config.Bind(ctx, config.BindSpec{Name: "turbinia-worker", Args: os.Args[1:]}, cfg)
	var helpErr config.HelpError
	if errors.As(err, &helpErr) {
		// Stop on --help flag
		fmt.Println(helpErr.Help) // nolint:forbidigo
		return nil
	} else if err != nil {
		return err
	}

	// Create logger.
	logger := dependencies.NewServiceLogger(os.Stderr, cfg.ServiceConfig).WithComponent("turbinia-worker")

	// Create process abstraction.
	proc, err := servicectx.New(ctx, cancel, logger)
	if err != nil {
		return err
	}

	// Create dependencies.
	d, err := dependencies.NewServiceScope(ctx, proc, logger, cfg.ServiceConfig)
	if err != nil {
		return err
	}

	// Start worker, the dependency check failure is fatal.
	logger.Infof(ctx, "starting Turbinia WORKER, debug=%t", cfg.DebugLog)
	if _, err := worker.New(ctx, d, cfg.Worker); err != nil {
		proc.Shutdown(err)
		proc.WaitForShutdown()
		return err
	}

	// Wait for the service shutdown.
	proc.WaitForShutdown()
	return nil
}
