// Package memory provides an in-process queue, it is used by tests and by a single-process deployment.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/transport"
)

type Factory struct {
	lock   sync.Mutex
	queues map[string]*Queue
}

type Queue struct {
	name     string
	lock     sync.Mutex
	messages [][]byte
	// notify is closed and replaced on each push
	notify chan struct{}
}

func NewFactory() *Factory {
	return &Factory{queues: make(map[string]*Queue)}
}

// Queue returns the same instance for the same name.
func (f *Factory) Queue(name string) transport.Queue {
	f.lock.Lock()
	defer f.lock.Unlock()
	q, found := f.queues[name]
	if !found {
		q = NewQueue(name)
		f.queues[name] = q
	}
	return q
}

func NewQueue(name string) *Queue {
	return &Queue{name: name, notify: make(chan struct{})}
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) Push(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.lock.Lock()
	defer q.lock.Unlock()
	q.messages = append(q.messages, append([]byte(nil), msg...))
	close(q.notify)
	q.notify = make(chan struct{})
	return nil
}

func (q *Queue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		q.lock.Lock()
		if len(q.messages) > 0 {
			msg := q.messages[0]
			q.messages[0] = nil
			q.messages = q.messages[1:]
			q.lock.Unlock()
			return msg, nil
		}
		notify := q.notify
		q.lock.Unlock()

		if timeout <= 0 {
			return nil, transport.ErrEmpty
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, transport.ErrEmpty
		case <-notify:
		}
	}
}

func (q *Queue) Len(context.Context) (int, error) {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.messages), nil
}
