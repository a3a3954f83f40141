// Package registry provides a name to factory map, one instance is created per pluggable type set.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"

	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

type Factory[T any] func() T

// Registry is safe for concurrent use. Names are normalized by Key.
type Registry[T any] struct {
	kind    string
	lock    sync.RWMutex
	entries map[string]entry[T]
}

type entry[T any] struct {
	name    string
	factory Factory[T]
}

// AlreadyRegisteredError is returned when a name is registered twice.
type AlreadyRegisteredError struct {
	Kind string
	Name string
}

// NotFoundError is returned when a name is not registered.
type NotFoundError struct {
	Kind string
	Name string
}

func (e AlreadyRegisteredError) Error() string {
	return e.Kind + ` "` + e.Name + `" is already registered`
}

func (e NotFoundError) Error() string {
	return e.Kind + ` "` + e.Name + `" is not registered`
}

// New creates an empty registry, the kind is used in error messages, for example "job".
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, entries: make(map[string]entry[T])}
}

// Key normalizes the name, so for example "PlasoJob" and "plaso_job" are the same entry.
func Key(name string) string {
	return strings.ReplaceAll(strcase.ToSnake(name), "_", "")
}

func (r *Registry[T]) Register(name string, factory Factory[T]) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, found := r.entries[Key(name)]; found {
		return errors.WithStack(AlreadyRegisteredError{Kind: r.kind, Name: name})
	}
	r.entries[Key(name)] = entry[T]{name: name, factory: factory}
	return nil
}

// RegisterMany registers all factories or none of them.
func (r *Registry[T]) RegisterMany(factories map[string]Factory[T]) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := errors.NewMultiError()
	seen := make(map[string]bool)
	for _, name := range names {
		if _, found := r.entries[Key(name)]; found || seen[Key(name)] {
			errs.Append(AlreadyRegisteredError{Kind: r.kind, Name: name})
		}
		seen[Key(name)] = true
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	for _, name := range names {
		r.entries[Key(name)] = entry[T]{name: name, factory: factories[name]}
	}
	return nil
}

func (r *Registry[T]) Deregister(name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, found := r.entries[Key(name)]; !found {
		return errors.WithStack(NotFoundError{Kind: r.kind, Name: name})
	}
	delete(r.entries, Key(name))
	return nil
}

func (r *Registry[T]) Has(name string) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	_, found := r.entries[Key(name)]
	return found
}

// Get creates a new instance by the registered factory.
func (r *Registry[T]) Get(name string) (T, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	e, found := r.entries[Key(name)]
	if !found {
		var empty T
		return empty, errors.WithStack(NotFoundError{Kind: r.kind, Name: name})
	}
	return e.factory(), nil
}

func (r *Registry[T]) GetMany(names []string) ([]T, error) {
	out := make([]T, 0, len(names))
	errs := errors.NewMultiError()
	for _, name := range names {
		v, err := r.Get(name)
		if err != nil {
			errs.Append(err)
			continue
		}
		out = append(out, v)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// Names returns registered names, as they were registered, sorted alphabetically.
func (r *Registry[T]) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.name)
	}
	sort.Strings(out)
	return out
}

// All returns new instances of all registered types, sorted by name.
func (r *Registry[T]) All() []T {
	names := r.Names()
	out := make([]T, 0, len(names))
	for _, name := range names {
		if v, err := r.Get(name); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func (r *Registry[T]) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.entries)
}
