package task

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/duration"
	"github.com/jleaniz/turbinia/internal/pkg/service/common/utctime"
)

const (
	StatusPending = "Task scheduled"
	StatusRunning = "Task is running"
)

// Result is the outcome of a task. Successful is nil while the task is pending or running.
type Result struct {
	Name           string              `json:"name"`
	ID             string              `json:"id"`
	RequestID      string              `json:"request_id"`
	GroupID        string              `json:"group_id,omitempty"`
	JobName        string              `json:"job_name,omitempty"`
	Requester      string              `json:"requester,omitempty"`
	WorkerName     string              `json:"worker_name,omitempty"`
	EvidenceName   string              `json:"evidence_name,omitempty"`
	Status         string              `json:"status"`
	Successful     *bool               `json:"successful"`
	ReportPriority Priority            `json:"report_priority"`
	RunTime        duration.Duration   `json:"run_time"`
	LastUpdate     utctime.UTCTime     `json:"last_update"`
	SavedPaths     []string            `json:"saved_paths,omitempty"`
	ReportData     string              `json:"report_data,omitempty"`
	Evidence       evidence.Collection `json:"evidence,omitempty"`
	Error          string              `json:"error,omitempty"`

	clock   clockwork.Clock
	started time.Time
}

// NewResult creates a pending result of the task.
func NewResult(t *Task, clock clockwork.Clock) *Result {
	r := &Result{
		Name:           t.Name,
		ID:             t.ID,
		RequestID:      t.RequestID,
		GroupID:        t.GroupID,
		JobName:        t.JobName,
		Requester:      t.Requester,
		Status:         StatusPending,
		ReportPriority: PriorityLow,
		clock:          clock,
	}
	r.LastUpdate = utctime.From(r.now())
	if t.Evidence.Evidence != nil {
		r.EvidenceName = t.Evidence.Name()
	}
	return r
}

// Start marks the result as running on the worker.
func (r *Result) Start(workerName string) {
	r.WorkerName = workerName
	r.Status = StatusRunning
	r.started = r.now()
	r.LastUpdate = utctime.From(r.started)
}

// Close sets the final state, the run time is measured from Start.
func (r *Result) Close(successful bool, status string) {
	now := r.now()
	r.Successful = &successful
	if status != "" {
		r.Status = status
	}
	if !r.started.IsZero() {
		r.RunTime = duration.From(now.Sub(r.started))
	}
	r.LastUpdate = utctime.From(now)
}

// WithClock sets the clock of a decoded result.
func (r *Result) WithClock(clock clockwork.Clock) *Result {
	r.clock = clock
	return r
}

func (r *Result) now() time.Time {
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	return r.clock.Now()
}

// IsFinished returns true, if the success is definite.
func (r *Result) IsFinished() bool {
	return r.Successful != nil
}

func (r *Result) IsSuccessful() bool {
	return r.Successful != nil && *r.Successful
}

func (r *Result) IsFailed() bool {
	return r.Successful != nil && !*r.Successful
}

// StartTime is the wall-clock start of the task, computed as last_update - run_time.
func (r *Result) StartTime() time.Time {
	return r.LastUpdate.Time().Add(-r.RunTime.Duration())
}

func (r *Result) AddEvidence(e evidence.Evidence) {
	r.Evidence.Add(e)
}

func (r *Result) AddSavedPath(path string) {
	r.SavedPaths = append(r.SavedPaths, path)
}

// Report appends a line to the report data.
func (r *Result) Report(line string) {
	if r.ReportData != "" && !strings.HasSuffix(r.ReportData, "\n") {
		r.ReportData += "\n"
	}
	r.ReportData += line
}

// SetPriority keeps the highest priority, it is the lowest value.
func (r *Result) SetPriority(p Priority) {
	if p < r.ReportPriority {
		r.ReportPriority = p
	}
}
