package pubsub

import (
	"sync"
)

// Topic fans a value of type T out to subscribers. Subscribers attach either
// a channel (SubscribeChan) or a callback (Subscribe); both return an
// unsubscribe function. A sticky topic remembers the last published value and
// replays it to late subscribers, which lets UI panes render current state
// without waiting for the next publish.
type Topic[T any] struct {
	mu        sync.Mutex
	chans     map[uint64]chan<- T
	callbacks map[uint64]func(T)
	nextID    uint64
	sticky    bool
	last      *T
}

// NewTopic creates a Topic. sticky controls last-value replay on subscribe.
func NewTopic[T any](sticky bool) *Topic[T] {
	return &Topic[T]{
		chans:     make(map[uint64]chan<- T),
		callbacks: make(map[uint64]func(T)),
		sticky:    sticky,
	}
}

// SubscribeChan registers ch to receive published values. Sends never block:
// a full channel misses the value. Returns an unsubscribe function.
func (t *Topic[T]) SubscribeChan(ch chan<- T) func() {
	if ch == nil {
		panic("pubsub: channel cannot be nil")
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.chans[id] = ch
	replay := t.stickyValueLocked()
	t.mu.Unlock()

	if replay != nil {
		select {
		case ch <- *replay:
		default:
		}
	}

	return func() {
		t.mu.Lock()
		delete(t.chans, id)
		t.mu.Unlock()
	}
}

// Subscribe registers a callback to be invoked with published values.
// Callbacks run on the publisher's goroutine, outside the topic lock.
// Returns an unsubscribe function.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		panic("pubsub: callback cannot be nil")
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.callbacks[id] = fn
	replay := t.stickyValueLocked()
	t.mu.Unlock()

	if replay != nil {
		fn(*replay)
	}

	return func() {
		t.mu.Lock()
		delete(t.callbacks, id)
		t.mu.Unlock()
	}
}

// Publish delivers value to every subscriber. Channel sends are non-blocking.
func (t *Topic[T]) Publish(value T) {
	t.mu.Lock()
	if t.sticky {
		if t.last == nil {
			t.last = new(T)
		}
		*t.last = value
	}
	chans := make([]chan<- T, 0, len(t.chans))
	for _, ch := range t.chans {
		chans = append(chans, ch)
	}
	callbacks := make([]func(T), 0, len(t.callbacks))
	for _, fn := range t.callbacks {
		callbacks = append(callbacks, fn)
	}
	t.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- value:
		default:
		}
	}
	for _, fn := range callbacks {
		fn(value)
	}
}

// SubscriberCount returns the number of attached subscribers.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chans) + len(t.callbacks)
}

// stickyValueLocked returns a copy of the replay value, or nil when there is
// nothing to replay. Caller must hold t.mu.
func (t *Topic[T]) stickyValueLocked() *T {
	if !t.sticky || t.last == nil {
		return nil
	}
	v := new(T)
	*v = *t.last
	return v
}
