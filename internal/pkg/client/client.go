// Package client submits requests and reports the status and statistics of their tasks.
package client

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/message"
	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const DefaultPollInterval = 60 * time.Second

type Client struct {
	logger  log.Logger
	clock   clockwork.Clock
	store   store.TaskStore
	channel *message.Channel
}

func New(logger log.Logger, clock clockwork.Clock, taskStore store.TaskStore, channel *message.Channel) *Client {
	return &Client{logger: logger.WithComponent("client"), clock: clock, store: taskStore, channel: channel}
}

func (c *Client) SendRequest(ctx context.Context, r *message.Request) error {
	return c.channel.SendRequest(ctx, r)
}

// GetTaskData returns results of tasks matching the filter.
func (c *Client) GetTaskData(ctx context.Context, filter store.Filter) ([]*task.Result, error) {
	results, err := c.store.List(ctx, filter)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot get task data")
	}
	return results, nil
}

// WaitForRequest polls results of the request until all known tasks are finished.
// Progress is logged as info only if the number of completed or uncompleted tasks has grown, otherwise as debug.
func (c *Client) WaitForRequest(ctx context.Context, requestID, user string, pollInterval time.Duration) error {
	logger := c.logger.With(attribute.String("request.id", requestID))
	lastCompleted, lastUncompleted := -1, -1
	for {
		results, err := c.GetTaskData(ctx, store.Filter{RequestID: requestID, User: user})
		if err != nil {
			return err
		}

		var completed, uncompleted []string
		for _, r := range results {
			if r.IsFinished() {
				completed = append(completed, r.Name)
			} else {
				uncompleted = append(uncompleted, r.Name)
			}
		}

		if len(completed) > 0 && len(completed) == len(results) {
			logger.Infof(ctx, "All %d Tasks completed", len(results))
			return nil
		}

		slices.Sort(completed)
		slices.Sort(uncompleted)
		msg := fmt.Sprintf(
			"Tasks completed (%d/%d): [%s], waiting for [%s].",
			len(completed), len(results), strings.Join(completed, ", "), strings.Join(uncompleted, ", "),
		)
		if len(completed) > lastCompleted || len(uncompleted) > lastUncompleted {
			logger.Info(ctx, msg)
		} else {
			logger.Debug(ctx, msg)
		}
		lastCompleted, lastUncompleted = len(completed), len(uncompleted)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(pollInterval):
		}
	}
}

// CloseTasks marks unfinished tasks as failed, it returns IDs of closed tasks.
// At least one filter field must be set.
func (c *Client) CloseTasks(ctx context.Context, filter store.Filter, requester string) ([]string, error) {
	if filter.RequestID == "" && filter.TaskID == "" && filter.User == "" {
		return nil, errors.New("request id, task id or user must be specified to close tasks")
	}

	results, err := c.GetTaskData(ctx, filter)
	if err != nil {
		return nil, err
	}

	var closed []string
	for _, r := range results {
		if r.IsFinished() {
			continue
		}
		r.WithClock(c.clock).Close(false, fmt.Sprintf("Task closed by requester %s", requester))
		if err := c.store.Put(ctx, r); err != nil {
			return closed, errors.PrefixErrorf(err, `cannot close task "%s"`, r.ID)
		}
		closed = append(closed, r.ID)
	}
	c.logger.Infof(ctx, "Closed Task IDs: %s", strings.Join(closed, ", "))
	return closed, nil
}
