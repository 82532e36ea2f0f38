package deeplink

import (
	"context"
	"strings"
	"sync"

	"pitchgate.app/internal/stream"
)

// Source is the platform's deep-link delivery: the URI the process was
// launched with, plus every URI delivered while it runs.
type Source interface {
	InitialURI(ctx context.Context) (string, bool)
	OnURI(fn func(string)) (unsubscribe func())
}

var _ Source = (*Feed)(nil)

// Feed is an in-process Source fed by the host (command line, control API).
type Feed struct {
	mu      sync.Mutex
	initial string
	hub     *stream.Hub[string]
}

// NewFeed records initial as the cold-start URI ("" for a normal launch).
func NewFeed(initial string) *Feed {
	return &Feed{initial: strings.TrimSpace(initial), hub: stream.New[string]()}
}

func (f *Feed) InitialURI(ctx context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initial, f.initial != ""
}

func (f *Feed) OnURI(fn func(string)) func() {
	return f.hub.Subscribe(fn)
}

// Deliver hands uri to every listener, as the OS does for a warm-start link.
func (f *Feed) Deliver(uri string) {
	f.hub.Publish(uri)
}
