package gate

import (
	"errors"
	"sync"
	"time"

	"pitchgate.app/internal/identity"
	"pitchgate.app/internal/nav"
	"pitchgate.app/internal/obs"
)

var ErrStarted = errors.New("gate: already started")

// SessionSource is the part of the identity provider the gate observes.
// State must return presence and loading from one consistent read.
type SessionSource interface {
	State() identity.Change
	OnChange(fn func(identity.Change)) (unsubscribe func())
}

// DefaultSettle is how long the loop waits after a wakeup before reading
// its inputs, so a session change and a route change posted together are
// decided on once.
const DefaultSettle = 10 * time.Millisecond

// Gate re-evaluates Decide whenever the session, the loading flag or the
// route changes and applies the redirect through the navigator.
//
// Notifications only mark the gate dirty; a single loop goroutine drains
// them and then reads all inputs at once, so changes arriving together are
// evaluated together and decisions are applied in order.
type Gate struct {
	sessions  SessionSource
	routes    nav.Source
	navigator nav.Navigator
	loginPath string
	homePath  string
	settle    time.Duration
	observer  func(Snapshot, Decision)

	dirty chan struct{}
	quit  chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	started  bool
	unsubs   []func()
	stopOnce sync.Once
}

// Option configures Gate.
type Option func(*Gate)

// WithPaths overrides the login and home targets.
func WithPaths(login, home string) Option {
	return func(g *Gate) {
		if login != "" {
			g.loginPath = login
		}
		if home != "" {
			g.homePath = home
		}
	}
}

// WithSettle overrides DefaultSettle. Zero evaluates on every wakeup.
func WithSettle(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.settle = d
		}
	}
}

// WithObserver is called on the loop goroutine after every evaluation.
func WithObserver(fn func(Snapshot, Decision)) Option {
	return func(g *Gate) { g.observer = fn }
}

// New constructs a stopped gate.
func New(sessions SessionSource, routes nav.Source, navigator nav.Navigator, opts ...Option) *Gate {
	g := &Gate{
		sessions:  sessions,
		routes:    routes,
		navigator: navigator,
		loginPath: LoginPath,
		homePath:  HomePath,
		settle:    DefaultSettle,
		dirty:     make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start subscribes to both sources and evaluates the current state once.
func (g *Gate) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return ErrStarted
	}
	g.started = true
	g.unsubs = append(g.unsubs,
		g.sessions.OnChange(func(identity.Change) { g.markDirty() }),
		g.routes.OnChange(func([]string) { g.markDirty() }),
	)
	go g.loop()
	g.markDirty()
	return nil
}

// Stop unsubscribes and waits for the loop to exit. No redirect is applied
// after Stop returns. Calling Stop on a gate that never started is a no-op.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() {
		g.mu.Lock()
		started := g.started
		unsubs := g.unsubs
		g.unsubs = nil
		g.mu.Unlock()

		for _, unsub := range unsubs {
			unsub()
		}
		close(g.quit)
		if started {
			<-g.done
		}
	})
}

func (g *Gate) markDirty() {
	select {
	case g.dirty <- struct{}{}:
	default:
	}
}

func (g *Gate) loop() {
	defer close(g.done)
	for {
		select {
		case <-g.quit:
			return
		case <-g.dirty:
		}
		if g.settle > 0 {
			select {
			case <-g.quit:
				return
			case <-time.After(g.settle):
			}
			select {
			case <-g.dirty:
			default:
			}
		}
		// Stop may have raced with the wakeup.
		select {
		case <-g.quit:
			return
		default:
		}
		g.evaluate()
	}
}

func (g *Gate) snapshot() Snapshot {
	st := g.sessions.State()
	s := Snapshot{SessionPresent: st.Present, Loading: st.Loading}
	if segs := g.routes.Segments(); len(segs) > 0 {
		s.FirstSegment = segs[0]
	}
	return s
}

func (g *Gate) evaluate() {
	snap := g.snapshot()
	d := snap.Decide()

	var target string
	switch d {
	case ToLogin:
		target = g.loginPath
	case ToHome:
		target = g.homePath
	}
	if target != "" && g.navigator.Replace(target) {
		obs.Redirect(target)
		obs.Logger().Info("gate.redirect",
			"decision", d.String(),
			"target", target,
			"session", snap.SessionPresent,
			"segment", snap.FirstSegment,
		)
	}
	if g.observer != nil {
		g.observer(snap, d)
	}
}
