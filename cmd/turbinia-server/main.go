package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jleaniz/turbinia/internal/pkg/service/common/config"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/dependencies"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/servicectx"
	"github.com/jleaniz/turbinia/internal/pkg/service/server"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type Config struct {
	dependencies.ServiceConfig `configKey:",squash"`
	Server                     server.Config `configKey:"server"`
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
	cfg := &Config{ServiceConfig: dependencies.NewServiceConfig(), Server: server.NewConfig()}
	err := config.Bind(ctx, config.BindSpec{Name: "turbinia-server", Args: os.Args[1:]}, cfg)
	var helpErr config.HelpError
	if errors.As(err, &helpErr) {
		// Stop on --help flag
		fmt.Println(helpErr.Help) // nolint:forbidigo
		return nil
	} else if err != nil {
		return err
	}

	// Create logger.
	logger := dependencies.NewServiceLogger(os.Stderr, cfg.ServiceConfig).WithComponent("turbinia-server")

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

	// Start server.
	logger.Infof(ctx, "starting Turbinia SERVER, debug=%t", cfg.DebugLog)
	if _, err := server.Start(ctx, d, cfg.Server); err != nil {
		return err
	}

	// Wait for the service shutdown.
	proc.WaitForShutdown()
	return nil
}
