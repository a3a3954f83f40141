// Package resource tracks claims of physical resources, for example an attached cloud disk, shared by tasks.
//
// Claims are stored in a JSON file, it is read and written only under an exclusive file lock.
// So workers on the same host agree on whether a resource can be detached.
package resource

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/duration"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type Config struct {
	StateFile   string            `configKey:"stateFile" configUsage:"Path to the resource state file." validate:"required"`
	LockFile    string            `configKey:"lockFile" configUsage:"Path to the lock file guarding the state file." validate:"required"`
	LockTimeout duration.Duration `configKey:"lockTimeout" configUsage:"Maximum wait for the lock." validate:"required"`
}

// State maps a resource ID to the IDs of tasks, which claim the resource.
type State map[string][]string

type Manager struct {
	logger log.Logger
	config Config
}

func NewConfig() Config {
	return Config{
		StateFile:   "/var/lib/turbinia/resource_state.json",
		LockFile:    "/var/lib/turbinia/resource_state.lock",
		LockTimeout: duration.From(5 * time.Minute),
	}
}

func NewManager(logger log.Logger, cfg Config) *Manager {
	return &Manager{logger: logger.WithComponent("resource"), config: cfg}
}

// WithLock runs the function while the lock is held, the lock is released on every path.
func (m *Manager) WithLock(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	unlock, err := AcquireFileLock(ctx, m.config.LockFile, m.config.LockTimeout.Duration())
	if err != nil {
		return err
	}
	defer func() {
		if unlockErr := unlock(); unlockErr != nil && err == nil {
			err = errors.PrefixErrorf(unlockErr, `cannot release lock "%s"`, m.config.LockFile)
		}
	}()
	return fn(ctx)
}

// PreprocessResourceState adds the task to claims of the resource, it is idempotent.
func (m *Manager) PreprocessResourceState(ctx context.Context, resourceID, taskID string) error {
	return m.WithLock(ctx, func(ctx context.Context) error {
		state, err := m.read()
		if err != nil {
			return err
		}
		if !slices.Contains(state[resourceID], taskID) {
			state[resourceID] = append(state[resourceID], taskID)
		}
		m.logger.With(attribute.String("resource.id", resourceID), attribute.String("task.id", taskID)).
			Debugf(ctx, `Resource claimed, %d claims`, len(state[resourceID]))
		return m.write(state)
	})
}

// PostProcessResourceState removes the task from claims of the resource.
// It returns true, if there is no other claim and the resource can be detached.
func (m *Manager) PostProcessResourceState(ctx context.Context, resourceID, taskID string) (detachable bool, err error) {
	err = m.WithLock(ctx, func(ctx context.Context) error {
		detachable, err = m.remove(ctx, resourceID, taskID)
		return err
	})
	return detachable, err
}

// Release removes the claim and, if the resource is detachable, calls teardown, all in one lock acquisition.
func (m *Manager) Release(ctx context.Context, resourceID, taskID string, teardown func(ctx context.Context) error) (detachable bool, err error) {
	err = m.WithLock(ctx, func(ctx context.Context) error {
		detachable, err = m.remove(ctx, resourceID, taskID)
		if err != nil || !detachable {
			return err
		}
		return teardown(ctx)
	})
	return detachable, err
}

// State returns a copy of the current claims.
func (m *Manager) State(ctx context.Context) (state State, err error) {
	err = m.WithLock(ctx, func(ctx context.Context) error {
		state, err = m.read()
		return err
	})
	return state, err
}

func (m *Manager) remove(ctx context.Context, resourceID, taskID string) (bool, error) {
	state, err := m.read()
	if err != nil {
		return false, err
	}

	logger := m.logger.With(attribute.String("resource.id", resourceID), attribute.String("task.id", taskID))
	claims, found := state[resourceID]
	if !found {
		logger.Warn(ctx, `Resource is not tracked, it is considered detachable`)
		return true, nil
	}

	claims = slices.DeleteFunc(claims, func(id string) bool { return id == taskID })
	if len(claims) > 0 {
		state[resourceID] = claims
		logger.Debugf(ctx, `Claim removed, %d claims remaining`, len(claims))
		return false, m.write(state)
	}

	delete(state, resourceID)
	logger.Debug(ctx, `Last claim removed, resource is detachable`)
	return true, m.write(state)
}

func (m *Manager) read() (State, error) {
	state := make(State)
	data, err := os.ReadFile(m.config.StateFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return state, nil
	case err != nil:
		return nil, errors.PrefixErrorf(err, `cannot read resource state "%s"`, m.config.StateFile)
	case len(data) == 0:
		return state, nil
	}
	if err := json.Decode(data, &state); err != nil {
		return nil, errors.PrefixErrorf(err, `cannot decode resource state "%s"`, m.config.StateFile)
	}
	return state, nil
}

// write replaces the file atomically.
func (m *Manager) write(state State) error {
	data, err := json.Encode(state, true)
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.config.StateFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.PrefixErrorf(err, `cannot create directory "%s"`, dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(m.config.StateFile)+".*")
	if err != nil {
		return errors.PrefixError(err, "cannot create temporary resource state")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.PrefixError(err, "cannot write resource state")
	}
	if err := tmp.Close(); err != nil {
		return errors.PrefixError(err, "cannot write resource state")
	}
	if err := os.Rename(tmp.Name(), m.config.StateFile); err != nil {
		return errors.PrefixErrorf(err, `cannot replace resource state "%s"`, m.config.StateFile)
	}
	return nil
}
