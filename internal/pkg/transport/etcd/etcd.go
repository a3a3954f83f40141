// Package etcd provides a queue shared by processes on different hosts.
//
// Each message is stored under its own key, the order is given by the create revision of the key.
// A consumer claims the oldest message by a transaction deleting the key,
// so a message is delivered only once even if more consumers race for it.
package etcd

import (
	"context"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/jleaniz/turbinia/internal/pkg/idgenerator"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const keyPrefix = "queue/"

type Factory struct {
	client *etcd.Client
}

type Queue struct {
	client *etcd.Client
	name   string
	prefix string
}

func NewFactory(client *etcd.Client) *Factory {
	return &Factory{client: client}
}

func (f *Factory) Queue(name string) transport.Queue {
	return NewQueue(f.client, name)
}

func NewQueue(client *etcd.Client, name string) *Queue {
	return &Queue{client: client, name: name, prefix: keyPrefix + name + "/"}
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) Push(ctx context.Context, msg []byte) error {
	key := q.prefix + idgenerator.QueueKeySuffix()
	if _, err := q.client.Put(ctx, key, string(msg)); err != nil {
		return errors.PrefixErrorf(err, `cannot push message to the queue "%s"`, q.name)
	}
	return nil
}

func (q *Queue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		resp, err := q.client.Get(ctx, q.prefix, etcd.WithPrefix(), etcd.WithSort(etcd.SortByCreateRevision, etcd.SortAscend), etcd.WithLimit(1))
		if err != nil {
			return nil, errors.PrefixErrorf(err, `cannot read the queue "%s"`, q.name)
		}

		if len(resp.Kvs) == 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, transport.ErrEmpty
			}
			if err := q.waitForPut(ctx, resp.Header.Revision+1, remaining); err != nil {
				return nil, err
			}
			continue
		}

		kv := resp.Kvs[0]
		key := string(kv.Key)
		txn, err := q.client.Txn(ctx).
			If(etcd.Compare(etcd.ModRevision(key), "=", kv.ModRevision)).
			Then(etcd.OpDelete(key)).
			Commit()
		if err != nil {
			return nil, errors.PrefixErrorf(err, `cannot claim message from the queue "%s"`, q.name)
		}
		if txn.Succeeded {
			return kv.Value, nil
		}
		// Another consumer was faster, try the next message.
	}
}

// waitForPut returns when a new key is put, or when the timeout is reached.
func (q *Queue) waitForPut(ctx context.Context, rev int64, timeout time.Duration) error {
	watchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for resp := range q.client.Watch(watchCtx, q.prefix, etcd.WithPrefix(), etcd.WithRev(rev)) {
		if err := resp.Err(); err != nil {
			return errors.PrefixErrorf(err, `cannot watch the queue "%s"`, q.name)
		}
		for _, event := range resp.Events {
			if event.Type == mvccpb.PUT {
				return nil
			}
		}
	}

	// The channel is closed on the timeout or cancellation.
	return ctx.Err()
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	resp, err := q.client.Get(ctx, q.prefix, etcd.WithPrefix(), etcd.WithCountOnly())
	if err != nil {
		return 0, errors.PrefixErrorf(err, `cannot count messages in the queue "%s"`, q.name)
	}
	return int(resp.Count), nil
}
