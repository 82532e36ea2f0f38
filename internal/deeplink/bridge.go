// Package deeplink turns inbound sign-in links into identity sessions.
package deeplink

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pitchgate.app/internal/audit"
	"pitchgate.app/internal/identity"
	"pitchgate.app/internal/linkparse"
	"pitchgate.app/internal/obs"
)

const defaultEstablishTimeout = 30 * time.Second

// Handling outcomes, also used as metric labels.
const (
	OutcomeIgnored     = "ignored"
	OutcomeNoTokens    = "no_tokens"
	OutcomeDropped     = "dropped"
	OutcomeEstablished = "established"
	OutcomeFailed      = "failed"
)

var authMarkers = []string{"auth/login", "auth/callback"}

// Bridge establishes at most one session per valid link. A link arriving
// while an establish call is in flight is dropped, not queued.
type Bridge struct {
	identity identity.Port
	source   Source
	timeout  time.Duration
	report   func(uri, outcome string)

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// Option configures Bridge.
type Option func(*Bridge)

// WithTimeout bounds each establish call.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithReporter observes the outcome of every handled URI.
func WithReporter(fn func(uri, outcome string)) Option {
	return func(b *Bridge) { b.report = fn }
}

// New wires a bridge; src may be nil when only Handle is used.
func New(port identity.Port, src Source, opts ...Option) *Bridge {
	b := &Bridge{
		identity: port,
		source:   src,
		timeout:  defaultEstablishTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsAuthLink reports whether uri targets the sign-in routes.
func IsAuthLink(uri string) bool {
	for _, m := range authMarkers {
		if strings.Contains(uri, m) {
			return true
		}
	}
	return false
}

// Start listens for live URIs and replays the launch URI, if any.
// The returned func detaches the listener; it is always safe to call.
func (b *Bridge) Start() (dispose func()) {
	if b.source == nil {
		return func() {}
	}
	unsubscribe := b.source.OnURI(b.Handle)
	if uri, ok := b.source.InitialURI(context.Background()); ok {
		obs.Logger().Info("deeplink.initial", "uri", redact(uri))
		b.Handle(uri)
	}
	return unsubscribe
}

// Handle processes one URI. It never blocks on the identity provider.
func (b *Bridge) Handle(uri string) {
	if !IsAuthLink(uri) {
		b.done(uri, OutcomeIgnored)
		return
	}
	params := linkparse.Params(uri)
	tokens := linkparse.Parse(uri)
	if tokens.Empty() {
		if reason := params[linkparse.KeyError]; reason != "" {
			obs.Logger().Warn("deeplink.provider_error",
				"error", reason,
				"description", params[linkparse.KeyErrorDescription],
			)
		}
		b.done(uri, OutcomeNoTokens)
		return
	}
	if !b.inFlight.CompareAndSwap(false, true) {
		obs.Logger().Warn("deeplink.dropped", "reason", "establish in flight", "uri", redact(uri))
		b.done(uri, OutcomeDropped)
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.inFlight.Store(false)
		b.establish(uri, tokens)
	}()
}

// Wait blocks until the in-flight establish call, if any, has finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) establish(uri string, tokens linkparse.Tokens) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	s, err := b.identity.SetSession(ctx, identity.Tokens{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	if err != nil {
		obs.Logger().Error("deeplink.establish.failed", "error", err, "uri", redact(uri))
		b.done(uri, OutcomeFailed)
		return
	}

	ctx = identity.ContextWithUser(ctx, s.UserID)
	_ = audit.LogEvent(ctx, "auth.session.established", map[string]any{
		"session_id": s.ID,
		"source":     "deeplink",
	})
	b.done(uri, OutcomeEstablished)
}

func (b *Bridge) done(uri, outcome string) {
	obs.DeepLink(outcome)
	if b.report != nil {
		b.report(uri, outcome)
	}
}

// redact keeps credentials out of the logs.
func redact(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		return uri[:i] + "?<redacted>"
	}
	return uri
}
