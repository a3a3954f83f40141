package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jleaniz/turbinia/internal/pkg/service/ctl"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Defaults of global flags can be stored in the .env file of the working directory
	lookup, err := ctl.EnvLookup(".env")
	if err == nil {
		root := ctl.NewRootCommand(os.Stdout, os.Stderr, ctl.WithEnvLookup(lookup))
		err = root.Execute(ctx, os.Args[1:])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error()) // nolint:forbidigo
		cancel()
		os.Exit(1)
	}
}
