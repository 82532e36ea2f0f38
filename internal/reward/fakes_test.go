package reward

import (
	"context"
	"errors"
	"sync"
	"time"

	"pitchgate.app/internal/ads"
	"pitchgate.app/internal/balance"
	"pitchgate.app/internal/identity"
	"pitchgate.app/internal/stream"
)

type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// AfterFunc schedules f to run when Advance reaches now+d.
func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm := &fakeTimer{at: c.t.Add(d), f: f}
	c.timers = append(c.timers, tm)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		was := !tm.stopped
		tm.stopped = true
		return was
	}
}

// Advance moves the clock and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	var due []func()
	pending := c.timers[:0]
	for _, tm := range c.timers {
		switch {
		case tm.stopped:
		case !tm.at.After(c.t):
			tm.stopped = true
			due = append(due, tm.f)
		default:
			pending = append(pending, tm)
		}
	}
	c.timers = pending
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

// fakeSessions is a signed-in (or signed-out) identity port.
type fakeSessions struct {
	sess    identity.Session
	present bool
	changes *stream.Hub[identity.Change]
}

func signedIn(userID string) *fakeSessions {
	return &fakeSessions{
		sess:    identity.Session{ID: "ses_1", UserID: userID},
		present: true,
		changes: stream.New[identity.Change](),
	}
}

func signedOut() *fakeSessions {
	return &fakeSessions{changes: stream.New[identity.Change]()}
}

func (f *fakeSessions) Current() (identity.Session, bool) { return f.sess, f.present }
func (f *fakeSessions) Loading() bool                     { return false }
func (f *fakeSessions) SetSession(context.Context, identity.Tokens) (identity.Session, error) {
	return identity.Session{}, errors.New("not supported")
}
func (f *fakeSessions) SignOut(context.Context) error { return nil }
func (f *fakeSessions) OnChange(fn func(identity.Change)) func() {
	return f.changes.Subscribe(fn)
}

// countingStore wraps a balance store and counts writes.
type countingStore struct {
	balance.Store
	mu       sync.Mutex
	writes   int
	writeErr error
}

func (s *countingStore) SetBalance(ctx context.Context, userID string, v int64) error {
	s.mu.Lock()
	s.writes++
	err := s.writeErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.SetBalance(ctx, userID, v)
}

func (s *countingStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// manualProvider hands out ads whose events are fired by the test.
type manualProvider struct {
	mu  sync.Mutex
	ads []*manualAd
}

func (p *manualProvider) NewRewarded(string) (ads.Ad, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ad := &manualAd{hubs: map[ads.EventKind]*stream.Hub[ads.Event]{}, shown: make(chan struct{}, 1)}
	p.ads = append(p.ads, ad)
	return ad, nil
}

func (p *manualProvider) last() *manualAd {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ads[len(p.ads)-1]
}

type manualAd struct {
	mu    sync.Mutex
	hubs  map[ads.EventKind]*stream.Hub[ads.Event]
	shown chan struct{}
}

func (a *manualAd) Load() error { return nil }

func (a *manualAd) Show() error {
	a.shown <- struct{}{}
	return nil
}

func (a *manualAd) AddListener(kind ads.EventKind, fn func(ads.Event)) func() {
	return a.hub(kind).Subscribe(fn)
}

func (a *manualAd) emit(ev ads.Event) { a.hub(ev.Kind).Publish(ev) }

func (a *manualAd) hub(kind ads.EventKind) *stream.Hub[ads.Event] {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.hubs[kind]
	if !ok {
		h = stream.New[ads.Event]()
		a.hubs[kind] = h
	}
	return h
}

func (a *manualAd) listeners() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, h := range a.hubs {
		n += h.Len()
	}
	return n
}
