package dependencies

import (
	"context"

	"github.com/jleaniz/turbinia/internal/pkg/service/common/etcdclient"
	"github.com/jleaniz/turbinia/internal/pkg/store"
	etcdStore "github.com/jleaniz/turbinia/internal/pkg/store/etcd"
	memoryStore "github.com/jleaniz/turbinia/internal/pkg/store/memory"
	"github.com/jleaniz/turbinia/internal/pkg/transport"
	etcdTransport "github.com/jleaniz/turbinia/internal/pkg/transport/etcd"
	memoryTransport "github.com/jleaniz/turbinia/internal/pkg/transport/memory"
)

// backendScope implements BackendScope interface.
type backendScope struct {
	BaseScope
	transport transport.Factory
	store     store.TaskStore
}

// NewBackendScope connects to etcd, if the endpoint is configured.
// Otherwise, in-memory queues and store are used, they are shared only within the process.
func NewBackendScope(ctx context.Context, base BaseScope, cfg etcdclient.Config) (BackendScope, error) {
	if !cfg.Enabled() {
		base.Logger().WithComponent("backend").Warn(ctx, "etcd endpoint is not set, using in-memory queues and task store")
		return newMemoryBackendScope(base), nil
	}

	client, err := etcdclient.New(ctx, base.Process(), base.Telemetry(), base.Logger(), cfg)
	if err != nil {
		return nil, err
	}

	return &backendScope{
		BaseScope: base,
		transport: etcdTransport.NewFactory(client),
		store:     etcdStore.New(client),
	}, nil
}

func newMemoryBackendScope(base BaseScope) *backendScope {
	return &backendScope{
		BaseScope: base,
		transport: memoryTransport.NewFactory(),
		store:     memoryStore.New(),
	}
}

func (v *backendScope) Transport() transport.Factory {
	return v.transport
}

func (v *backendScope) TaskStore() store.TaskStore {
	return v.store
}
