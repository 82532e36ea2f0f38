package stream

import (
	"sort"
	"sync"
)

// Hub fans a value out to every registered listener.
// Listeners run on the publishing goroutine, in registration order.
type Hub[T any] struct {
	mu   sync.RWMutex
	subs map[int]func(T)
	next int
}

// New initialises an empty hub.
func New[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns a func removing it.
// The returned func may be called any number of times.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers v to a snapshot of the current listeners.
// A listener removed during delivery may still receive v.
func (h *Hub[T]) Publish(v T) {
	for _, fn := range h.snapshot() {
		fn(v)
	}
}

// Len reports the number of registered listeners.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub[T]) snapshot() []func(T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]int, 0, len(h.subs))
	for k := range h.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]func(T), 0, len(keys))
	for _, k := range keys {
		out = append(out, h.subs[k])
	}
	return out
}
