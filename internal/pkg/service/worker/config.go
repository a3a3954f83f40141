package worker

import (
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/resource"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/duration"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type Config struct {
	Name              string                `configKey:"name" configUsage:"Name of the worker reported in task results, the process ID is used by default."`
	OutputDir         string                `configKey:"outputDir" configUsage:"Directory for task outputs." validate:"required"`
	TmpDir            string                `configKey:"tmpDir" configUsage:"Directory for temporary files of tasks." validate:"required"`
	LockFile          string                `configKey:"lockFile" configUsage:"Worker lock file, it is held while a task is running." validate:"required"`
	LockTimeout       duration.Duration     `configKey:"lockTimeout" configUsage:"Maximum wait for the worker lock." validate:"required"`
	PollTimeout       duration.Duration     `configKey:"pollTimeout" configUsage:"Maximum wait for a new task in one poll." validate:"required"`
	JobsAllowlist     []string              `configKey:"jobsAllowlist" configUsage:"Only these jobs are enabled."`
	JobsDenylist      []string              `configKey:"jobsDenylist" configUsage:"These jobs are disabled."`
	DisabledJobs      []string              `configKey:"disabledJobs" configUsage:"Jobs disabled by default, they can be enabled by the allowlist."`
	CheckDependencies bool                  `configKey:"checkDependencies" configUsage:"Check that programs of enabled jobs are installed."`
	Resource          resource.Config       `configKey:"resource"`
	Processor         processor.LocalConfig `configKey:"processor"`
}

func NewConfig() Config {
	return Config{
		OutputDir:         "/var/lib/turbinia/output",
		TmpDir:            "/var/lib/turbinia/tmp",
		LockFile:          "/var/lib/turbinia/worker.lock",
		LockTimeout:       duration.From(time.Minute),
		PollTimeout:       duration.From(5 * time.Second),
		DisabledJobs:      []string{"PlasoJob", "YaraAnalysisJob"},
		CheckDependencies: true,
		Resource:          resource.NewConfig(),
		Processor:         processor.LocalConfig{MountDirPrefix: "/var/lib/turbinia/mounts"},
	}
}

func (c *Config) Validate() error {
	if len(c.JobsAllowlist) > 0 && len(c.JobsDenylist) > 0 {
		return errors.New("jobs allowlist and denylist cannot be used together")
	}
	if c.OutputDir == c.TmpDir {
		return errors.Errorf(`output directory and tmp directory must differ, both are "%s"`, c.OutputDir)
	}
	return nil
}
