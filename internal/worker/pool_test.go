package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/subtrack_server/internal/pkg/queue"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (h *recordingHandler) Process(ctx context.Context, msg *queue.RunMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg.RunID)
	if h.fail[msg.RunID] {
		return errors.New("boom")
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestPool_ProcessesQueuedRuns(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := queue.NewQueue(client, "pool_test", "pool_test:delayed")
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Push(ctx, &queue.RunMessage{RunID: id, SubscriptionID: 1}))
	}

	handler := &recordingHandler{fail: map[string]bool{"b": true}}
	pool := NewPool(q, handler, 2, 100*time.Millisecond, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		pool.Run(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool { return handler.count() == 4 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}

	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, handler.seen)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(nil, nil, 0, 0, zap.NewNop())
	assert.Equal(t, 1, pool.workers)
	assert.Equal(t, 5*time.Second, pool.popTimeout)
}
