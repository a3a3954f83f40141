package server

import (
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/service/common/duration"
)

type Config struct {
	PollTimeout  duration.Duration `configKey:"pollTimeout" configUsage:"Maximum wait for a new request or result in one poll." validate:"required"`
	DisabledJobs []string          `configKey:"disabledJobs" configUsage:"Jobs disabled by default, a request can enable them by the jobs_allowlist of the recipe."`
}

func NewConfig() Config {
	return Config{
		PollTimeout:  duration.From(5 * time.Second),
		DisabledJobs: []string{"PlasoJob", "YaraAnalysisJob"},
	}
}
