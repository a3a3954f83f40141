package message

import (
	"context"
	"fmt"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// Queue transfers JSON encoded values of the type T, for example tasks or results.
type Queue[T any] struct {
	queue transport.Queue
}

// Decoder is implemented by values with a custom decoding, for example to return typed errors.
type Decoder interface {
	DecodeJSON(data []byte) error
}

// DecodeError is returned by Pop when a message was consumed, but it cannot be decoded.
type DecodeError struct {
	Queue string
	Data  []byte
	err   error
}

func (e DecodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf(`cannot decode message from the queue "%s"`, e.Queue)
	}
	return fmt.Sprintf(`cannot decode message from the queue "%s": %s`, e.Queue, e.err.Error())
}

func (e DecodeError) Unwrap() error {
	return e.err
}

func NewQueue[T any](queue transport.Queue) *Queue[T] {
	return &Queue[T]{queue: queue}
}

func (q *Queue[T]) Push(ctx context.Context, v *T) error {
	data, err := json.Encode(v, false)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot encode message for the queue "%s"`, q.queue.Name())
	}
	return q.queue.Push(ctx, data)
}

// Pop returns transport.ErrEmpty if there is no message before the timeout.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (*T, error) {
	data, err := q.queue.Pop(ctx, timeout)
	if err != nil {
		return nil, err
	}
	v := new(T)
	if d, ok := any(v).(Decoder); ok {
		err = d.DecodeJSON(data)
	} else {
		err = json.Decode(data, v)
	}
	if err != nil {
		return nil, errors.WithStack(DecodeError{Queue: q.queue.Name(), Data: data, err: err})
	}
	return v, nil
}
