package reward

import (
	"context"
	"sync"
	"time"

	"pitchgate.app/internal/ads"
)

// State of an Attempt. States only move forward.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateShowing
	StateEarned
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateShowing:
		return "showing"
	case StateEarned:
		return "earned"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool { return s == StateClosed || s == StateFailed }

// eventTimeout is posted internally when the cooldown window ends first.
const eventTimeout ads.EventKind = "timeout"

// Attempt is one run of the watch-ad state machine.
type Attempt struct {
	ID        string
	Amount    int64
	AdUnit    string
	StartedAt time.Time

	events chan ads.Event
	done   chan struct{}

	mu         sync.Mutex
	state      State
	trace      []State
	err        error
	claimed    bool
	credited   bool
	newBalance int64
	unsubs     []func()
}

func newAttempt(id string, amount int64, adUnit string, startedAt time.Time) *Attempt {
	return &Attempt{
		ID:        id,
		Amount:    amount,
		AdUnit:    adUnit,
		StartedAt: startedAt,
		events:    make(chan ads.Event, 16),
		done:      make(chan struct{}),
		state:     StateIdle,
		trace:     []State{StateIdle},
	}
}

// Done is closed once the attempt reaches Closed or Failed.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Wait blocks until the attempt is terminal or ctx ends.
func (a *Attempt) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Trace returns every state entered so far, in order.
func (a *Attempt) Trace() []State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]State(nil), a.trace...)
}

// Err is the provider, credit or timeout failure recorded on the attempt.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Credited reports whether the balance was credited and the balance written.
func (a *Attempt) Credited() (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.newBalance, a.credited
}

// post hands a provider callback to the attempt loop. Events arriving after
// the attempt finished are discarded.
func (a *Attempt) post(ev ads.Event) {
	select {
	case <-a.done:
	case a.events <- ev:
	}
}

// enter moves the attempt forward to s. Backward moves and moves out of a
// terminal state are refused.
func (a *Attempt) enter(s State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Terminal() || s <= a.state {
		return false
	}
	a.state = s
	a.trace = append(a.trace, s)
	return true
}

func (a *Attempt) setErr(err error) {
	a.mu.Lock()
	if a.err == nil {
		a.err = err
	}
	a.mu.Unlock()
}

// claimCredit returns true exactly once per attempt.
func (a *Attempt) claimCredit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claimed {
		return false
	}
	a.claimed = true
	return true
}

func (a *Attempt) setCredited(newBalance int64) {
	a.mu.Lock()
	a.credited = true
	a.newBalance = newBalance
	a.mu.Unlock()
}

func (a *Attempt) hold(unsub func()) {
	a.mu.Lock()
	a.unsubs = append(a.unsubs, unsub)
	a.mu.Unlock()
}

func (a *Attempt) release() {
	a.mu.Lock()
	unsubs := a.unsubs
	a.unsubs = nil
	a.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}
