// Package nav holds the client's navigation state: the current location,
// its history and change notifications.
package nav

import (
	"strings"
	"sync"

	"pitchgate.app/internal/stream"
)

// Source exposes the current route segments reactively.
type Source interface {
	Segments() []string
	OnChange(fn func([]string)) (unsubscribe func())
}

// Navigator applies navigation actions.
type Navigator interface {
	Replace(path string) bool
}

// Router is an in-process navigation stack.
type Router struct {
	mu      sync.RWMutex
	history []string
	changes *stream.Hub[[]string]
}

var (
	_ Source    = (*Router)(nil)
	_ Navigator = (*Router)(nil)
)

// NewRouter starts at initial ("/" when empty).
func NewRouter(initial string) *Router {
	return &Router{
		history: []string{Clean(initial)},
		changes: stream.New[[]string](),
	}
}

// Location returns the current path.
func (r *Router) Location() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.history[len(r.history)-1]
}

// Segments returns the path segments of the current location.
func (r *Router) Segments() []string {
	return Segments(r.Location())
}

// History returns a copy of the navigation stack, oldest first.
func (r *Router) History() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.history))
	copy(out, r.history)
	return out
}

// Push appends path to the history.
func (r *Router) Push(path string) {
	path = Clean(path)
	r.mu.Lock()
	r.history = append(r.history, path)
	r.mu.Unlock()
	r.changes.Publish(Segments(path))
}

// Replace swaps the current entry for path. It reports false and does
// nothing when path is already the current location.
func (r *Router) Replace(path string) bool {
	path = Clean(path)
	r.mu.Lock()
	last := len(r.history) - 1
	if r.history[last] == path {
		r.mu.Unlock()
		return false
	}
	r.history[last] = path
	r.mu.Unlock()
	r.changes.Publish(Segments(path))
	return true
}

// Back pops the current entry. It reports false at the root of the stack.
func (r *Router) Back() bool {
	r.mu.Lock()
	if len(r.history) == 1 {
		r.mu.Unlock()
		return false
	}
	r.history = r.history[:len(r.history)-1]
	cur := r.history[len(r.history)-1]
	r.mu.Unlock()
	r.changes.Publish(Segments(cur))
	return true
}

func (r *Router) OnChange(fn func([]string)) func() {
	return r.changes.Subscribe(fn)
}

// Clean normalises a path to a leading slash without a trailing one.
func Clean(path string) string {
	return "/" + strings.Join(Segments(path), "/")
}

// Segments splits a path into its non-empty segments.
func Segments(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
