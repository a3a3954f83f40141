package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/service/common/duration"
)

type testConfig struct {
	Embedded `configKey:",squash"`
	Ignored  string
	Name     string            `configKey:"name" configUsage:"Instance name." validate:"required"`
	Workers  int               `configKey:"workers" validate:"min=1"`
	Debug    bool              `configKey:"debug"`
	Jobs     []string          `configKey:"jobs"`
	Timeout  duration.Duration `configKey:"timeout"`
	Resource testResource      `configKey:"resource"`
}

type Embedded struct {
	Region string `configKey:"region"`
}

type testResource struct {
	LockTimeout duration.Duration `configKey:"lockTimeout" configUsage:"Maximum wait for the resource lock."`
	StateFile   string            `configKey:"stateFile"`
}

func defaultTestConfig() *testConfig {
	return &testConfig{
		Name:     "default",
		Workers:  1,
		Timeout:  duration.From(time.Hour),
		Resource: testResource{LockTimeout: duration.From(time.Minute), StateFile: "/var/lib/turbinia/state.json"},
	}
}

func noEnv(string) (string, bool) {
	return "", false
}

func TestBind_Defaults(t *testing.T) {
	t.Parallel()
	cfg := defaultTestConfig()
	require.NoError(t, Bind(context.Background(), BindSpec{Name: "test", Lookup: noEnv}, cfg))
	assert.Equal(t, defaultTestConfig(), cfg)
}

func TestBind_Sources(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "config.yaml")
	content := "name: from-file\nworkers: 3\nresource:\n  lockTimeout: 30\n  stateFile: /tmp/file.json\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	envs := map[string]string{
		"TURBINIA_WORKERS":             "5",
		"TURBINIA_RESOURCE_STATE_FILE": "/tmp/env.json",
		"TURBINIA_REGION":              "us-central1",
	}
	lookup := func(key string) (string, bool) {
		v, ok := envs[key]
		return v, ok
	}

	cfg := defaultTestConfig()
	args := []string{"--config-file", file, "--resource-state-file", "/tmp/flag.json", "--jobs", "StringsJob,GrepJob", "--debug"}
	require.NoError(t, Bind(context.Background(), BindSpec{Name: "test", Args: args, Lookup: lookup}, cfg))

	assert.Equal(t, "from-file", cfg.Name)
	assert.Equal(t, 5, cfg.Workers)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"StringsJob", "GrepJob"}, cfg.Jobs)
	assert.Equal(t, "us-central1", cfg.Region)
	assert.Equal(t, 30*time.Second, cfg.Resource.LockTimeout.Duration())
	assert.Equal(t, "/tmp/flag.json", cfg.Resource.StateFile)
	assert.Equal(t, time.Hour, cfg.Timeout.Duration())
}

func TestBind_Validation(t *testing.T) {
	t.Parallel()
	cfg := defaultTestConfig()
	err := Bind(context.Background(), BindSpec{Name: "test", Args: []string{"--name", "", "--workers", "0"}, Lookup: noEnv}, cfg)
	require.Error(t, err)
	assert.Equal(t, "invalid configuration:\n- \"name\" is a required field\n- \"workers\" must be 1 or greater", err.Error())
}

func TestBind_Help(t *testing.T) {
	t.Parallel()
	cfg := defaultTestConfig()
	err := Bind(context.Background(), BindSpec{Name: "test", Args: []string{"--help"}, Lookup: noEnv}, cfg)
	var helpErr HelpError
	require.ErrorAs(t, err, &helpErr)
	assert.Contains(t, helpErr.Help, `Usage of "test":`)
	assert.Contains(t, helpErr.Help, "--resource-lock-timeout string")
	assert.Contains(t, helpErr.Help, "Maximum wait for the resource lock.")
	assert.Contains(t, helpErr.Help, `"TURBINIA_FOO_BAR"`)
}

func TestFlagAndEnvName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "resource-lock-timeout", FlagName("resource.lockTimeout"))
	assert.Equal(t, "TURBINIA_RESOURCE_LOCK_TIMEOUT", EnvName(DefaultPrefix, "resource.lockTimeout"))
}
