// Package transport defines the FIFO queue used to pass requests, tasks and results between processes.
package transport

import (
	"context"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// Names of the queues.
const (
	RequestsQueue = "requests"
	TasksQueue    = "tasks"
	ResultsQueue  = "results"
)

// ErrEmpty is returned by Pop if no message arrived before the timeout.
var ErrEmpty = errors.New("queue is empty") // nolint: gochecknoglobals

// Queue is a FIFO of serialized messages.
// Each message is delivered to exactly one consumer.
type Queue interface {
	Name() string
	Push(ctx context.Context, msg []byte) error
	// Pop removes the oldest message, it waits up to the timeout for a new message.
	// A zero timeout means no waiting.
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Len(ctx context.Context) (int, error)
}

// Factory opens a queue by name.
type Factory interface {
	Queue(name string) Queue
}

// Drain pops messages until the queue is empty or the limit is reached.
func Drain(ctx context.Context, q Queue, limit int) ([][]byte, error) {
	var out [][]byte
	for limit <= 0 || len(out) < limit {
		msg, err := q.Pop(ctx, 0)
		if errors.Is(err, ErrEmpty) {
			break
		} else if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}
