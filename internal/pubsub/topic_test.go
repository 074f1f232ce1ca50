package pubsub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic_SubscribeChan_Publish(t *testing.T) {
	topic := NewTopic[string](false)

	ch := make(chan string, 10)
	unsubscribe := topic.SubscribeChan(ch)
	assert.Equal(t, 1, topic.SubscriberCount())

	topic.Publish("first")
	topic.Publish("second")

	received := drain(t, ch, 2)
	assert.Equal(t, []string{"first", "second"}, received)

	unsubscribe()
	assert.Equal(t, 0, topic.SubscriberCount())

	topic.Publish("third")
	select {
	case v := <-ch:
		t.Errorf("unexpected value after unsubscribe: %s", v)
	default:
	}
}

func TestTopic_Subscribe_Callback(t *testing.T) {
	topic := NewTopic[int](false)

	var mu sync.Mutex
	var got []int
	unsubscribe := topic.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	topic.Publish(1)
	topic.Publish(2)
	unsubscribe()
	topic.Publish(3)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, got)
}

func TestTopic_StickyReplaysLastValue(t *testing.T) {
	topic := NewTopic[string](true)

	// Nothing published yet: no replay.
	early := make(chan string, 1)
	topic.SubscribeChan(early)
	select {
	case v := <-early:
		t.Errorf("unexpected replay before first publish: %s", v)
	default:
	}

	topic.Publish("state-1")
	topic.Publish("state-2")

	late := make(chan string, 1)
	topic.SubscribeChan(late)
	select {
	case v := <-late:
		assert.Equal(t, "state-2", v)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for sticky replay")
	}

	var cbGot string
	topic.Subscribe(func(v string) { cbGot = v })
	assert.Equal(t, "state-2", cbGot)
}

func TestTopic_NonStickyDoesNotReplay(t *testing.T) {
	topic := NewTopic[string](false)
	topic.Publish("gone")

	ch := make(chan string, 1)
	topic.SubscribeChan(ch)
	select {
	case v := <-ch:
		t.Errorf("unexpected replay on non-sticky topic: %s", v)
	default:
	}
}

func TestTopic_FullChannelSkipped(t *testing.T) {
	topic := NewTopic[string](false)

	ch := make(chan string, 1)
	unsubscribe := topic.SubscribeChan(ch)
	defer unsubscribe()

	ch <- "blocking"
	topic.Publish("dropped")
	assert.Equal(t, 1, len(ch))
	assert.Equal(t, "blocking", <-ch)

	topic.Publish("kept")
	assert.Equal(t, "kept", <-ch)
}

func TestTopic_NilSubscriberPanics(t *testing.T) {
	topic := NewTopic[string](false)
	assert.Panics(t, func() { topic.SubscribeChan(nil) })
	assert.Panics(t, func() { topic.Subscribe(nil) })
}

func TestTopic_ConcurrentPublish(t *testing.T) {
	topic := NewTopic[int](false)

	chans := make([]chan int, 5)
	for i := range chans {
		chans[i] = make(chan int, 100)
		topic.SubscribeChan(chans[i])
	}
	require.Equal(t, 5, topic.SubscriberCount())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			topic.Publish(v)
		}(i)
	}
	wg.Wait()

	for i, ch := range chans {
		got := drain(t, ch, 10)
		assert.Len(t, got, 10, "channel %d", i)
	}
}

func drain[T any](t *testing.T, ch chan T, n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	for len(out) < n {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("timeout draining channel, got %d of %d", len(out), n)
		}
	}
	return out
}
