// Package store persists task results, the client reads the status of requests from it.
package store

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/task"
)

// TaskStore keeps the latest result of each task.
// A finished result is never replaced by an unfinished one, so a late "scheduled" update cannot hide the outcome.
type TaskStore interface {
	Put(ctx context.Context, result *task.Result) error
	List(ctx context.Context, filter Filter) ([]*task.Result, error)
}

// Filter selects results, empty fields match everything.
type Filter struct {
	RequestID string
	TaskID    string
	User      string
	// Since keeps results updated at or after the time.
	Since time.Time
}

func (f Filter) Match(r *task.Result) bool {
	if f.RequestID != "" && r.RequestID != f.RequestID {
		return false
	}
	if f.TaskID != "" && r.ID != f.TaskID {
		return false
	}
	if f.User != "" && r.Requester != f.User {
		return false
	}
	if !f.Since.IsZero() && r.LastUpdate.Time().Before(f.Since) {
		return false
	}
	return true
}

// ShouldReplace returns false if the update would replace a finished result by an unfinished one.
func ShouldReplace(current, update *task.Result) bool {
	return current == nil || !current.IsFinished() || update.IsFinished()
}

// Sort orders results by the last update, then by the task ID.
func Sort(results []*task.Result) {
	slices.SortStableFunc(results, func(a, b *task.Result) int {
		if c := a.LastUpdate.Time().Compare(b.LastUpdate.Time()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
