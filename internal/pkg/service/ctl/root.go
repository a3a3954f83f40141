// Package ctl implements turbiniactl, the command line client of the server.
package ctl

import (
	"context"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/jleaniz/turbinia/internal/pkg/client"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/message"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/config"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/dependencies"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/etcdclient"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/servicectx"
	"github.com/jleaniz/turbinia/internal/pkg/telemetry"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type Cmd = cobra.Command

// GlobalFlags are shared by all sub-commands.
type GlobalFlags struct {
	DebugLog  bool
	LogFormat string
	Etcd      etcdclient.Config
}

type RootCommand struct {
	*Cmd
	flags  GlobalFlags
	stdout io.Writer
	stderr io.Writer
	lookup func(key string) (string, bool)
	scope  dependencies.BackendScope
	proc   *servicectx.Process
	client *client.Client
	clk    clockwork.Clock
}

type Option func(root *RootCommand)

// WithScope replaces the etcd connection with the scope, it is used by tests.
func WithScope(d dependencies.BackendScope) Option {
	return func(root *RootCommand) {
		root.scope = d
	}
}

// WithEnvLookup sets the source of default flag values, os.LookupEnv is used by default.
func WithEnvLookup(fn func(key string) (string, bool)) Option {
	return func(root *RootCommand) {
		root.lookup = fn
	}
}

// EnvLookup returns ENVs of the process, values from the existing env files are used as a fallback.
func EnvLookup(files ...string) (func(key string) (string, bool), error) {
	fromFiles := make(map[string]string)
	for _, path := range files {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, errors.PrefixErrorf(err, `cannot load env file "%s"`, path)
		}
		for k, v := range values {
			if _, found := fromFiles[k]; !found {
				fromFiles[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, found := os.LookupEnv(key); found {
			return v, true
		}
		v, found := fromFiles[key]
		return v, found
	}, nil
}

// NewRootCommand creates parent of all sub-commands.
func NewRootCommand(stdout, stderr io.Writer, opts ...Option) *RootCommand {
	root := &RootCommand{stdout: stdout, stderr: stderr, lookup: os.LookupEnv}
	for _, o := range opts {
		o(root)
	}

	root.Cmd = &Cmd{
		Use:               "turbiniactl",
		Short:             "Submit evidence to Turbinia and report results of its tasks.",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	// Persistent flags, defaults can be set by ENVs, for example TURBINIA_ETCD_ENDPOINT
	root.flags = GlobalFlags{LogFormat: string(log.LogFormatConsole), Etcd: etcdclient.NewConfig()}
	flags := root.PersistentFlags()
	flags.BoolVar(&root.flags.DebugLog, "debug-log", root.envBool("debugLog", false), "Enable debug log level.")
	flags.StringVar(&root.flags.LogFormat, "log-format", root.envString("logFormat", root.flags.LogFormat), `Log format, "console" or "json".`)
	flags.StringVar(&root.flags.Etcd.Endpoint, "etcd-endpoint", root.envString("etcd.endpoint", ""), "Etcd endpoint.")
	flags.StringVar(&root.flags.Etcd.Namespace, "etcd-namespace", root.envString("etcd.namespace", root.flags.Etcd.Namespace), "Etcd namespace.")
	flags.StringVar(&root.flags.Etcd.Username, "etcd-username", root.envString("etcd.username", ""), "Etcd username.")
	flags.StringVar(&root.flags.Etcd.Password, "etcd-password", root.envString("etcd.password", ""), "Etcd password.")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return root.init(cmd.Context())
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		root.close()
	}

	root.AddCommand(
		SubmitCommand(root),
		StatusCommand(root),
		StatisticsCommand(root),
		WaitCommand(root),
		CloseCommand(root),
	)
	return root
}

// Execute runs the command and releases the connection also on error.
func (root *RootCommand) Execute(ctx context.Context, args []string) error {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		root.close()
	}
	return err
}

func (root *RootCommand) envString(key, fallback string) string {
	if v, found := root.lookup(config.EnvName(config.DefaultPrefix, key)); found {
		return v
	}
	return fallback
}

func (root *RootCommand) envBool(key string, fallback bool) bool {
	switch root.envString(key, "") {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return fallback
	}
}

func (root *RootCommand) init(ctx context.Context) error {
	if root.scope != nil {
		root.setScope(root.scope)
		return nil
	}

	format, err := log.NewLogFormat(root.flags.LogFormat)
	if err != nil {
		return err
	}
	logger := log.NewServiceLogger(root.stderr, log.ServiceLoggerConfig{Format: format, Debug: root.flags.DebugLog})

	// The memory backend is useless for the client, it must reach the server
	root.flags.Etcd.Normalize()
	if err := root.flags.Etcd.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	root.proc, err = servicectx.New(ctx, cancel, logger)
	if err != nil {
		cancel()
		return err
	}

	base := dependencies.NewBaseScope(logger, clockwork.NewRealClock(), telemetry.NewNop(), root.proc)
	d, err := dependencies.NewBackendScope(ctx, base, root.flags.Etcd)
	if err != nil {
		return err
	}
	root.setScope(d)
	return nil
}

func (root *RootCommand) close() {
	if root.proc != nil {
		root.proc.Shutdown(nil)
		root.proc.WaitForShutdown()
		root.proc = nil
	}
}

func (root *RootCommand) setScope(d dependencies.BackendScope) {
	channel := message.NewChannel(d.Logger(), d.Transport().Queue(transport.RequestsQueue))
	root.client = client.New(d.Logger(), d.Clock(), d.TaskStore(), channel)
	root.clk = d.Clock()
}

func (root *RootCommand) clock() clockwork.Clock {
	return root.clk
}
