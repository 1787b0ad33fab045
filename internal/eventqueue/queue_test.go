package eventqueue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New()
	for i := 0; i < 3; i++ {
		require.True(t, q.Push(protocol.ResolverReady(fmt.Sprint(i), "")))
	}
	assert.Equal(t, 3, q.Len())

	for i := 0; i < 3; i++ {
		ev, err := q.Pull(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), ev.ResolverID)
	}
}

func TestQueue_PullBlocksUntilPush(t *testing.T) {
	q := New()
	got := make(chan protocol.Event, 1)
	go func() {
		ev, err := q.Pull(context.Background())
		if err == nil {
			got <- ev
		}
	}()

	select {
	case <-got:
		t.Fatal("Pull returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(protocol.Ready("w1"))
	select {
	case ev := <-got:
		assert.Equal(t, "w1", ev.WorkerID)
	case <-time.After(time.Second):
		t.Fatal("Pull did not return after Push")
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q := New()
	q.Push(protocol.ResolverReady("a", ""))
	q.Close()

	assert.False(t, q.Push(protocol.ResolverReady("b", "")))

	ev, err := q.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", ev.ResolverID)

	_, err = q.Pull(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_PullContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pull(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_PerProducerOrder(t *testing.T) {
	q := New()
	const producers, perProducer = 4, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(protocol.Event{Type: protocol.TypeResolverReady, ResolverID: fmt.Sprint(p), Reason: fmt.Sprint(i)})
			}
		}(p)
	}
	wg.Wait()
	q.Close()

	next := map[string]int{}
	for {
		ev, err := q.Pull(context.Background())
		if err != nil {
			require.ErrorIs(t, err, ErrClosed)
			break
		}
		assert.Equal(t, fmt.Sprint(next[ev.ResolverID]), ev.Reason)
		next[ev.ResolverID]++
	}
	for p := 0; p < producers; p++ {
		assert.Equal(t, perProducer, next[fmt.Sprint(p)])
	}
}
