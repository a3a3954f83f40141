// Package jobs contains the built-in jobs and definitions of their tasks.
package jobs

import (
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/registry"
	"github.com/jleaniz/turbinia/internal/pkg/task"
)

// All returns new instances of the built-in jobs.
func All() []job.Job {
	return []job.Job{
		NewPartitionEnumerationJob(),
		NewFsstatJob(),
		NewPlasoJob(),
		NewYaraAnalysisJob(),
		NewRedisExtractionJob(),
		NewRedisAnalysisJob(),
		NewJupyterExtractionJob(),
		NewJupyterAnalysisJob(),
		NewLinuxAccountAnalysisJob(),
		NewPostgresAccountAnalysisJob(),
		NewStringsJob(),
		NewGrepJob(),
	}
}

// Register registers the built-in jobs to the manager.
func Register(m *job.Manager) error {
	return m.RegisterMany(All()...)
}

// Definitions returns the registry of built-in task definitions, workers find a definition by the task name.
func Definitions() (*registry.Registry[task.Definition], error) {
	r := registry.New[task.Definition]("task")
	factories := make(map[string]registry.Factory[task.Definition])
	for _, def := range []task.Definition{
		&PartitionEnumerationTask{},
		&FsstatTask{},
		&PlasoParserTask{},
		&PlasoHasherTask{},
		&YaraAnalysisTask{},
		&FileArtifactExtractionTask{},
		&RedisAnalysisTask{},
		&JupyterAnalysisTask{},
		&LinuxAccountAnalysisTask{},
		&PostgresAccountAnalysisTask{},
		&StringsTask{unicode: false},
		&StringsTask{unicode: true},
		&GrepTask{},
	} {
		factories[def.Name()] = func() task.Definition { return def }
	}
	if err := r.RegisterMany(factories); err != nil {
		return nil, err
	}
	return r, nil
}
