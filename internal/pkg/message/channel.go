package message

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jleaniz/turbinia/internal/pkg/log"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// maxBatch limits the number of requests returned by one CheckMessages call.
const maxBatch = 100

// Channel sends requests to the server and receives them on the server side.
type Channel struct {
	logger log.Logger
	queue  transport.Queue
}

func NewChannel(logger log.Logger, queue transport.Queue) *Channel {
	return &Channel{logger: logger.WithComponent("message"), queue: queue}
}

// SendMessage enqueues a serialized message.
func (c *Channel) SendMessage(ctx context.Context, msg []byte) error {
	if err := c.queue.Push(ctx, msg); err != nil {
		return errors.PrefixError(err, "cannot send message")
	}
	return nil
}

func (c *Channel) SendRequest(ctx context.Context, r *Request) error {
	data, err := r.ToJSON()
	if err != nil {
		return err
	}
	if err := c.SendMessage(ctx, data); err != nil {
		return err
	}
	c.logger.With(attribute.String("request.id", r.RequestID)).Infof(ctx, `Sent request "%s" with %d evidence`, r.RequestID, len(r.Evidence))
	return nil
}

// CheckMessages returns new requests, it waits up to the timeout for the first one.
// Messages that cannot be decoded or are not valid are logged and dropped.
func (c *Channel) CheckMessages(ctx context.Context, timeout time.Duration) ([]*Request, error) {
	first, err := c.queue.Pop(ctx, timeout)
	if errors.Is(err, transport.ErrEmpty) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	msgs, err := transport.Drain(ctx, c.queue, maxBatch-1)
	msgs = append([][]byte{first}, msgs...)

	var out []*Request
	for _, msg := range msgs {
		if r := c.validateMessage(ctx, msg); r != nil {
			out = append(out, r)
		}
	}
	return out, err
}

func (c *Channel) validateMessage(ctx context.Context, msg []byte) *Request {
	r, err := FromJSON(msg)
	if err == nil {
		err = r.Validate(ctx)
	}
	if err != nil {
		c.logger.Errorf(ctx, `Error decoding message: %s`, err)
		return nil
	}
	c.logger.With(attribute.String("request.id", r.RequestID)).Infof(ctx, `Received request "%s" from "%s"`, r.RequestID, r.Requester)
	return r
}
