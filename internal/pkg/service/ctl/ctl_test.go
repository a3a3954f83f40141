package ctl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/message"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/dependencies"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
)

func execute(t *testing.T, d dependencies.Mocked, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand(&stdout, &stderr, WithScope(d), WithEnvLookup(func(string) (string, bool) { return "", false }))
	err := root.Execute(context.Background(), args)
	return stdout.String(), err
}

func TestSubmit_RawDisk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	out, err := execute(t, d, "submit", "rawdisk", "--source-path", "/evidence/disk.raw", "--request-id", "req1", "--requester", "alice", "--jobs-denylist", "StringsJob")
	require.NoError(t, err)
	assert.Equal(t, "Request ID: req1\n", out)

	msg, err := d.Transport().Queue(transport.RequestsQueue).Pop(ctx, time.Second)
	require.NoError(t, err)
	r := &message.Request{}
	require.NoError(t, json.Decode(msg, r))
	assert.Equal(t, "req1", r.RequestID)
	assert.Equal(t, "alice", r.Requester)
	assert.Equal(t, map[string]any{"jobs_denylist": []any{"StringsJob"}}, r.Recipe["globals"])
	require.Len(t, r.Evidence, 1)
	assert.Equal(t, evidence.TypeRawDisk, r.Evidence[0].Type())
	assert.Equal(t, "/evidence/disk.raw", r.Evidence[0].Common().SourcePath)
}

func TestSubmit_MissingSourcePath(t *testing.T) {
	t.Parallel()

	_, err := execute(t, dependencies.NewMocked(t), "submit", "directory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "source-path" not set`)
}

func TestSubmit_InvalidEvidence(t *testing.T) {
	t.Parallel()

	_, err := execute(t, dependencies.NewMocked(t), "submit", "googleclouddisk", "--project", "p1")
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	out, err := execute(t, d, "status", "--request-id", "req1")
	require.NoError(t, err)
	assert.Equal(t, "No tasks found\n", out)

	tsk := task.New("FsstatTask", "FsstatJob", evidence.NewRawDisk("/evidence/disk.raw"))
	tsk.RequestID = "req1"
	tsk.Requester = "alice"
	result := task.NewResult(tsk, d.Clock())
	result.Start("worker1")
	result.Close(true, "Done")
	require.NoError(t, d.TaskStore().Put(ctx, result))

	out, err = execute(t, d, "status", "--request-id", "req1")
	require.NoError(t, err)
	assert.Contains(t, out, "Turbinia report req1")
	assert.Contains(t, out, "Processed 1 Tasks for user alice")
	assert.Contains(t, out, "FsstatTask: Done")
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	out, err := execute(t, dependencies.NewMocked(t), "statistics", "--csv")
	require.NoError(t, err)
	assert.Equal(t, "No tasks found", out)
}

func TestClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := dependencies.NewMocked(t)

	_, err := execute(t, d, "close")
	require.Error(t, err)
	assert.Equal(t, "request id, task id or user must be specified to close tasks", err.Error())

	tsk := task.New("FsstatTask", "FsstatJob", evidence.NewRawDisk("/evidence/disk.raw"))
	tsk.RequestID = "req1"
	require.NoError(t, d.TaskStore().Put(ctx, task.NewResult(tsk, d.Clock())))

	out, err := execute(t, d, "close", "-r", "req1", "--requester", "bob")
	require.NoError(t, err)
	assert.Equal(t, "Closed 1 task(s)\n", out)

	out, err = execute(t, d, "status", "-r", "req1")
	require.NoError(t, err)
	assert.Contains(t, out, "Task closed by requester bob")
}

func TestWait_RequiresRequestID(t *testing.T) {
	t.Parallel()

	_, err := execute(t, dependencies.NewMocked(t), "wait")
	require.Error(t, err)
	assert.Equal(t, "request id must be specified", err.Error())
}

func TestEnvLookup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TURBINIA_ETCD_ENDPOINT=etcd:2379\nTURBINIA_ETCD_NAMESPACE=\"case1\"\n"), 0o600))

	lookup, err := EnvLookup(filepath.Join(dir, "missing.env"), envFile)
	require.NoError(t, err)

	v, found := lookup("TURBINIA_ETCD_ENDPOINT")
	assert.True(t, found)
	assert.Equal(t, "etcd:2379", v)
	v, _ = lookup("TURBINIA_ETCD_NAMESPACE")
	assert.Equal(t, "case1", v)
	_, found = lookup("TURBINIA_UNKNOWN_KEY_FOR_TEST")
	assert.False(t, found)

	// Flags default from the lookup
	var stdout, stderr bytes.Buffer
	root := NewRootCommand(&stdout, &stderr, WithEnvLookup(lookup))
	assert.Equal(t, "etcd:2379", root.flags.Etcd.Endpoint)
	assert.Equal(t, "case1", root.flags.Etcd.Namespace)
}
