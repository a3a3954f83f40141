// Package etcdhelper creates etcd clients for tests.
package etcdhelper

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"

	"github.com/jleaniz/turbinia/internal/pkg/idgenerator"
)

// ClientForTest returns a client with a unique namespace, the namespace is deleted after the test.
// The test is skipped if UNIT_ETCD_ENDPOINT is not set.
func ClientForTest(t testing.TB) *etcd.Client {
	t.Helper()
	ctx := context.Background()

	if os.Getenv("UNIT_ETCD_ENABLED") == "false" {
		t.Skipf("etcd test is disabled by UNIT_ETCD_ENABLED=false")
	}

	endpoint := os.Getenv("UNIT_ETCD_ENDPOINT")
	if endpoint == "" {
		t.Skipf(`etcd test is skipped, UNIT_ETCD_ENDPOINT is not set`)
	}

	client, err := etcd.New(etcd.Config{
		Context:              ctx,
		Endpoints:            []string{endpoint},
		DialTimeout:          2 * time.Second,
		DialKeepAliveTimeout: 2 * time.Second,
		DialKeepAliveTime:    10 * time.Second,
		Username:             os.Getenv("UNIT_ETCD_USERNAME"), // optional
		Password:             os.Getenv("UNIT_ETCD_PASSWORD"), // optional
	})
	if err != nil {
		t.Fatalf("cannot create etcd client: %s", err)
	}

	// Create namespace
	originalKV := client.KV // not namespaced client for the cleanup
	prefix := fmt.Sprintf("unit-%s/", idgenerator.EtcdNamespaceForTest())
	client.KV = namespace.NewKV(client.KV, prefix)
	client.Lease = namespace.NewLease(client.Lease, prefix)
	client.Watcher = namespace.NewWatcher(client.Watcher, prefix)

	// Cleanup namespace after the test
	t.Cleanup(func() {
		if _, err := originalKV.Delete(ctx, prefix, etcd.WithPrefix()); err != nil {
			t.Errorf(`cannot clear etcd namespace "%s" after test: %s`, prefix, err)
		}
		_ = client.Close()
	})

	return client
}
