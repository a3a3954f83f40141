// Package job maps evidence types to processing jobs and expands jobs into tasks.
package job

import (
	"slices"
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/task"
)

// Job is a registered processing unit, it is stateless.
type Job interface {
	Name() string
	// EvidenceInput returns accepted evidence types.
	EvidenceInput() []string
	// EvidenceOutput returns evidence types, which can be produced by tasks of the job.
	EvidenceOutput() []string
	// FanIn jobs receive the whole matching batch at once, others receive one evidence at a time.
	FanIn() bool
	// Dependency returns external programs required by tasks of the job.
	Dependency() Dependency
	CreateTasks(batch []evidence.Evidence) []*task.Task
}

// Dependency of a job, checked at worker startup.
type Dependency struct {
	Programs []string
	Timeout  time.Duration
}

// Base implements the common part of the Job interface.
type Base struct {
	JobName    string
	Input      []string
	Output     []string
	IsFanIn    bool
	Programs   []string
	MaxRunTime time.Duration
}

func (b Base) Name() string {
	return b.JobName
}

func (b Base) EvidenceInput() []string {
	return b.Input
}

func (b Base) EvidenceOutput() []string {
	return b.Output
}

func (b Base) FanIn() bool {
	return b.IsFanIn
}

func (b Base) Dependency() Dependency {
	return Dependency{Programs: b.Programs, Timeout: b.MaxRunTime}
}

// Accepts returns true if the job accepts the evidence type and the evidence was not produced by the job.
func Accepts(j Job, e evidence.Evidence) bool {
	if e.Common().WasProcessedBy(j.Name()) {
		return false
	}
	return slices.ContainsFunc(j.EvidenceInput(), func(t string) bool {
		return strings.EqualFold(t, e.Type())
	})
}

// NewTasks creates one task of each definition for the evidence.
func NewTasks(j Job, e evidence.Evidence, definitions ...string) []*task.Task {
	out := make([]*task.Task, 0, len(definitions))
	for _, name := range definitions {
		out = append(out, task.New(name, j.Name(), e))
	}
	return out
}
