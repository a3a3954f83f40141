package job

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/registry"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// Manager is the job registry of a process.
// It is populated at startup and optionally filtered by allow and deny lists.
type Manager struct {
	logger   log.Logger
	registry *registry.Registry[Job]
}

func NewManager(logger log.Logger) *Manager {
	return &Manager{logger: logger.WithComponent("job"), registry: registry.New[Job]("job")}
}

// Register fails if the name is already registered.
func (m *Manager) Register(j Job) error {
	return m.registry.Register(j.Name(), func() Job { return j })
}

// RegisterMany registers all jobs or none of them.
func (m *Manager) RegisterMany(jobs ...Job) error {
	factories := make(map[string]registry.Factory[Job], len(jobs))
	errs := errors.NewMultiError()
	for _, j := range jobs {
		if _, found := factories[j.Name()]; found {
			errs.Append(registry.AlreadyRegisteredError{Kind: "job", Name: j.Name()})
			continue
		}
		factories[j.Name()] = func() Job { return j }
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	return m.registry.RegisterMany(factories)
}

func (m *Manager) Deregister(name string) error {
	return m.registry.Deregister(name)
}

func (m *Manager) Get(name string) (Job, error) {
	return m.registry.Get(name)
}

func (m *Manager) GetMany(names []string) ([]Job, error) {
	return m.registry.GetMany(names)
}

// Names returns names of registered jobs, sorted alphabetically.
func (m *Manager) Names() []string {
	return m.registry.Names()
}

func (m *Manager) All() []Job {
	return m.registry.All()
}

// Filter deregisters jobs, which should not run.
// The allow list and the deny list cannot be used together.
// Disabled jobs are removed unless they are in the allow list.
// Unknown job names are reported as an error and nothing is deregistered.
func (m *Manager) Filter(ctx context.Context, allow, deny, disabled []string) error {
	if len(allow) > 0 && len(deny) > 0 {
		return errors.New("jobs allow list and deny list cannot be used together")
	}

	errs := errors.NewMultiError()
	for _, name := range append(append(append([]string(nil), allow...), deny...), disabled...) {
		if !m.registry.Has(name) {
			errs.Append(errors.WithStack(registry.NotFoundError{Kind: "job", Name: name}))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return errors.PrefixError(err, "cannot filter jobs")
	}

	remove := make(map[string]string)
	if len(allow) > 0 {
		for _, name := range m.registry.Names() {
			remove[registry.Key(name)] = name
		}
		for _, name := range allow {
			delete(remove, registry.Key(name))
		}
	}
	for _, name := range deny {
		remove[registry.Key(name)] = name
	}
	for _, name := range disabled {
		if !containsKey(allow, name) {
			remove[registry.Key(name)] = name
		}
	}

	names := make([]string, 0, len(remove))
	for _, name := range remove {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := m.registry.Deregister(name); err != nil {
			return err
		}
	}
	if len(names) > 0 {
		m.logger.Infof(ctx, `Deregistered jobs: %s`, strings.Join(names, ", "))
	}
	return nil
}

// Select returns jobs accepting the evidence, sorted by name.
func (m *Manager) Select(e evidence.Evidence) []Job {
	var out []Job
	for _, j := range m.registry.All() {
		if Accepts(j, e) {
			out = append(out, j)
		}
	}
	return out
}

// Expand creates tasks for the batch.
// A job may match more evidence and more jobs may match the same evidence.
// A fan-in job is called once with all matching evidence, other jobs are called for each matching evidence.
func (m *Manager) Expand(ctx context.Context, batch []evidence.Evidence) []*task.Task {
	var out []*task.Task
	for _, j := range m.registry.All() {
		var matching []evidence.Evidence
		for _, e := range batch {
			if Accepts(j, e) {
				matching = append(matching, e)
			}
		}
		if len(matching) == 0 {
			continue
		}

		var tasks []*task.Task
		if j.FanIn() {
			tasks = j.CreateTasks(matching)
		} else {
			for _, e := range matching {
				tasks = append(tasks, j.CreateTasks([]evidence.Evidence{e})...)
			}
		}
		m.logger.With(attribute.String("job", j.Name())).Debugf(ctx, `Job matched %d evidence, created %d tasks`, len(matching), len(tasks))
		out = append(out, tasks...)
	}
	return out
}

func containsKey(items []string, s string) bool {
	for _, item := range items {
		if registry.Key(item) == registry.Key(s) {
			return true
		}
	}
	return false
}
