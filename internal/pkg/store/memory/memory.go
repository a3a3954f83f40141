// Package memory provides an in-process task store.
package memory

import (
	"context"
	"sync"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
	"github.com/jleaniz/turbinia/internal/pkg/store"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// Store keeps serialized results, so callers cannot modify stored values.
type Store struct {
	lock    sync.RWMutex
	results map[string][]byte
	order   []string
}

func New() *Store {
	return &Store{results: make(map[string][]byte)}
}

func (s *Store) Put(_ context.Context, result *task.Result) error {
	if result.ID == "" {
		return errors.New("cannot store result: task id is not set")
	}

	data, err := json.Encode(result, false)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot encode result of the task "%s"`, result.ID)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if existing, found := s.results[result.ID]; found {
		current := &task.Result{}
		if err := current.DecodeJSON(existing); err == nil && !store.ShouldReplace(current, result) {
			return nil
		}
	} else {
		s.order = append(s.order, result.ID)
	}
	s.results[result.ID] = data
	return nil
}

func (s *Store) List(_ context.Context, filter store.Filter) ([]*task.Result, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var out []*task.Result
	for _, id := range s.order {
		result := &task.Result{}
		if err := result.DecodeJSON(s.results[id]); err != nil {
			return nil, errors.PrefixErrorf(err, `cannot decode result of the task "%s"`, id)
		}
		if filter.Match(result) {
			out = append(out, result)
		}
	}
	store.Sort(out)
	return out, nil
}
