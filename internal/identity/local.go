package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pitchgate.app/internal/ids"
	"pitchgate.app/internal/obs"
	"pitchgate.app/internal/stream"
)

var _ Port = (*Local)(nil)

// Local is the reference identity provider used by the client. It verifies
// access tokens with an Authority and keeps the session in a SessionStore.
// It starts in the loading state until Restore completes.
type Local struct {
	authority *Authority
	store     SessionStore
	changes   *stream.Hub[Change]
	now       func() time.Time

	mu      sync.RWMutex
	current *Session
	loading bool
}

// LocalOption configures Local.
type LocalOption func(*Local)

// WithStore overrides the default in-memory session store.
func WithStore(store SessionStore) LocalOption {
	return func(l *Local) {
		if store != nil {
			l.store = store
		}
	}
}

// WithLocalClock overrides the time source.
func WithLocalClock(fn func() time.Time) LocalOption {
	return func(l *Local) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLocal constructs a provider in the loading state.
func NewLocal(authority *Authority, opts ...LocalOption) *Local {
	l := &Local{
		authority: authority,
		store:     NewMemoryStore(),
		changes:   stream.New[Change](),
		now:       time.Now,
		loading:   true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Restore loads the persisted session and leaves the loading state.
// A store failure is logged and treated as signed out.
func (l *Local) Restore(ctx context.Context) error {
	s, ok, err := l.store.Load(ctx)
	if err != nil {
		obs.Logger().WarnContext(ctx, "identity.restore.failed", "error", err)
		ok = false
	}

	l.mu.Lock()
	l.loading = false
	if ok {
		l.current = &s
	}
	change := l.changeLocked()
	l.mu.Unlock()

	l.changes.Publish(change)
	return err
}

func (l *Local) Current() (Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return Session{}, false
	}
	return *l.current, true
}

func (l *Local) Loading() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loading
}

// SetSession installs a session from a token pair. On any failure the
// previous session stays in place and the error wraps ErrSessionEstablish.
func (l *Local) SetSession(ctx context.Context, tokens Tokens) (Session, error) {
	access := strings.TrimSpace(tokens.AccessToken)
	refresh := strings.TrimSpace(tokens.RefreshToken)
	if access == "" || refresh == "" {
		return Session{}, fmt.Errorf("%w: %w", ErrSessionEstablish, ErrMissingCredential)
	}
	claims, err := l.authority.Verify(access)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrSessionEstablish, err)
	}

	s := Session{
		ID:           ids.New("ses"),
		UserID:       claims.Subject,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    claims.ExpiresAt.Time.UTC(),
		CreatedAt:    l.now().UTC(),
	}
	if err := l.store.Save(ctx, s); err != nil {
		return Session{}, fmt.Errorf("%w: persist: %w", ErrSessionEstablish, err)
	}

	l.mu.Lock()
	l.current = &s
	change := l.changeLocked()
	l.mu.Unlock()

	l.changes.Publish(change)
	return s, nil
}

// SignOut forgets the current session.
func (l *Local) SignOut(ctx context.Context) error {
	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	l.mu.Lock()
	l.current = nil
	change := l.changeLocked()
	l.mu.Unlock()

	l.changes.Publish(change)
	return nil
}

// State returns the session and the loading flag from a single read.
func (l *Local) State() Change {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changeLocked()
}

func (l *Local) OnChange(fn func(Change)) func() {
	return l.changes.Subscribe(fn)
}

func (l *Local) changeLocked() Change {
	c := Change{Loading: l.loading}
	if l.current != nil {
		c.Session = *l.current
		c.Present = true
	}
	return c
}
