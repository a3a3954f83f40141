// Package etcd provides a task store shared by the server, workers and clients.
package etcd

import (
	"context"

	etcd "go.etcd.io/etcd/client/v3"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// Results are stored under "task/<request id>/<task id>".
const keyPrefix = "task/"

type Store struct {
	client *etcd.Client
}

func New(client *etcd.Client) *Store {
	return &Store{client: client}
}

func key(result *task.Result) string {
	return keyPrefix + result.RequestID + "/" + result.ID
}

// Put uses optimistic concurrency, the update is retried if the key was modified in the meantime.
func (s *Store) Put(ctx context.Context, result *task.Result) error {
	if result.ID == "" || result.RequestID == "" {
		return errors.New("cannot store result: task id or request id is not set")
	}

	data, err := json.Encode(result, false)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot encode result of the task "%s"`, result.ID)
	}

	k := key(result)
	for {
		resp, err := s.client.Get(ctx, k)
		if err != nil {
			return errors.PrefixErrorf(err, `cannot load result of the task "%s"`, result.ID)
		}

		var cmp etcd.Cmp
		if len(resp.Kvs) == 0 {
			cmp = etcd.Compare(etcd.CreateRevision(k), "=", 0)
		} else {
			current := &task.Result{}
			if err := current.DecodeJSON(resp.Kvs[0].Value); err == nil && !store.ShouldReplace(current, result) {
				return nil
			}
			cmp = etcd.Compare(etcd.ModRevision(k), "=", resp.Kvs[0].ModRevision)
		}

		txn, err := s.client.Txn(ctx).If(cmp).Then(etcd.OpPut(k, string(data))).Commit()
		if err != nil {
			return errors.PrefixErrorf(err, `cannot store result of the task "%s"`, result.ID)
		}
		if txn.Succeeded {
			return nil
		}
	}
}

func (s *Store) List(ctx context.Context, filter store.Filter) ([]*task.Result, error) {
	prefix := keyPrefix
	if filter.RequestID != "" {
		prefix += filter.RequestID + "/"
	}

	resp, err := s.client.Get(ctx, prefix, etcd.WithPrefix())
	if err != nil {
		return nil, errors.PrefixError(err, "cannot list task results")
	}

	var out []*task.Result
	for _, kv := range resp.Kvs {
		result := &task.Result{}
		if err := result.DecodeJSON(kv.Value); err != nil {
			return nil, errors.PrefixErrorf(err, `cannot decode result "%s"`, string(kv.Key))
		}
		if filter.Match(result) {
			out = append(out, result)
		}
	}
	store.Sort(out)
	return out, nil
}
