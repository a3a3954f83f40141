// Package task contains the dispatched unit of work, its Result and the Runner executing a task Definition on a worker.
package task

import (
	"context"

	"github.com/spf13/cast"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/idgenerator"
	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/utctime"
)

// Task is one unit of work sent to a worker, it references the evidence it operates on.
type Task struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	JobName   string         `json:"job_name"`
	RequestID string         `json:"request_id"`
	GroupID   string         `json:"group_id,omitempty"`
	Requester string         `json:"requester,omitempty"`
	Evidence  evidence.Wire  `json:"evidence"`
	Recipe    map[string]any `json:"recipe,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	// Args are set by the job, for example the name of an artifact to extract.
	Args      map[string]string `json:"args,omitempty"`
	CreatedAt utctime.UTCTime   `json:"created_at"`
	OutputDir string            `json:"output_dir,omitempty"`
	TmpDir    string            `json:"tmp_dir,omitempty"`
}

// Definition is implemented by each type of task, a worker finds it by the task name.
type Definition interface {
	Name() string
	// RequiredStates must be satisfied by the evidence before Run, only states possible for the evidence are checked.
	RequiredStates() []evidence.State
	Run(ctx context.Context, rc *RunContext, e evidence.Evidence, result *Result) error
}

// RunContext provides dependencies to a running task.
type RunContext struct {
	Task      *Task
	Logger    log.Logger
	Executor  Executor
	Processor processor.Processor
	OutputDir string
	TmpDir    string
}

// New creates a task for the evidence, the request fields are filled by the scheduler.
func New(name, jobName string, e evidence.Evidence) *Task {
	return &Task{
		ID:       idgenerator.TaskID(),
		Name:     name,
		JobName:  jobName,
		Evidence: evidence.Wire{Evidence: e},
	}
}

// RecipeValue returns a task-specific value from the recipe, the "globals" section is used as a fallback.
func (t *Task) RecipeValue(key string) (any, bool) {
	for _, section := range []string{t.Name, "globals"} {
		if m, ok := t.Recipe[section].(map[string]any); ok {
			if v, found := m[key]; found {
				return v, true
			}
		}
	}
	return nil, false
}

// RecipeString returns the recipe value converted to a string, empty if the value is missing or not scalar.
func (t *Task) RecipeString(key string) string {
	v, _ := t.RecipeValue(key)
	s, _ := cast.ToStringE(v)
	return s
}

// RecipeStrings returns the recipe value as a list, a single string is one item.
func (t *Task) RecipeStrings(key string) []string {
	v, found := t.RecipeValue(key)
	if !found {
		return nil
	}
	if s, ok := v.(string); ok {
		return []string{s}
	}
	out, _ := cast.ToStringSliceE(v)
	return out
}

// RecipeBool returns the recipe value as a bool, "true", "1" and true are accepted.
func (t *Task) RecipeBool(key string) bool {
	v, _ := t.RecipeValue(key)
	b, _ := cast.ToBoolE(v)
	return b
}
