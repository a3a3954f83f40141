package etcd

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jleaniz/turbinia/internal/pkg/transport"
	"github.com/jleaniz/turbinia/internal/pkg/utils/etcdhelper"
)

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)

	q := NewFactory(client).Queue(transport.TasksQueue)
	_, err := q.Pop(ctx, 0)
	require.ErrorIs(t, err, transport.ErrEmpty)

	for i := range 3 {
		require.NoError(t, q.Push(ctx, []byte(fmt.Sprintf("msg%d", i))))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	msgs, err := transport.Drain(ctx, q, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("msg0"), []byte("msg1"), []byte("msg2")}, msgs)
}

func TestQueue_PopWaits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)
	q := NewQueue(client, transport.ResultsQueue)

	go func() {
		time.Sleep(100 * time.Millisecond)
		assert.NoError(t, q.Push(ctx, []byte("late")))
	}()

	msg, err := q.Pop(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", string(msg))

	_, err = q.Pop(ctx, 100*time.Millisecond)
	require.ErrorIs(t, err, transport.ErrEmpty)
}

func TestQueue_ExactlyOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := etcdhelper.ClientForTest(t)
	q := NewQueue(client, transport.TasksQueue)

	const count = 20
	for i := range count {
		require.NoError(t, q.Push(ctx, []byte(fmt.Sprintf("msg%d", i))))
	}

	var lock sync.Mutex
	seen := make(map[string]int)
	wg := &sync.WaitGroup{}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, err := q.Pop(ctx, 0)
				if err != nil {
					assert.ErrorIs(t, err, transport.ErrEmpty)
					return
				}
				lock.Lock()
				seen[string(msg)]++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, count)
	for msg, n := range seen {
		assert.Equal(t, 1, n, msg)
	}
}
