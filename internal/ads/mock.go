package ads

import (
	"fmt"
	"sync"
	"time"

	"pitchgate.app/internal/obs"
	"pitchgate.app/internal/stream"
)

// Script controls what a mock ad emits and when.
type Script struct {
	LoadDelay  time.Duration
	EarnDelay  time.Duration
	CloseDelay time.Duration
	Reward     Reward
	// EarnTwice emits earned_reward a second time, as some SDKs do.
	EarnTwice bool
	// FailLoad makes the ad report an error instead of loaded.
	FailLoad bool
	// SkipEarn closes the ad without a reward (user dismissed it early).
	SkipEarn bool
}

// DefaultScript is the development timing: loaded after 1s, reward after 2s, closed after 3s.
func DefaultScript() Script {
	return Script{
		LoadDelay:  time.Second,
		EarnDelay:  2 * time.Second,
		CloseDelay: 3 * time.Second,
		Reward:     Reward{Type: "coins", Amount: 1},
	}
}

var _ Provider = (*Mock)(nil)

// Mock is a Provider that plays a Script. It is used in development builds
// and in tests.
type Mock struct {
	mu     sync.Mutex
	script Script
	ads    []*MockAd
}

func NewMock(script Script) *Mock {
	return &Mock{script: script}
}

func (m *Mock) NewRewarded(adUnit string) (Ad, error) {
	if adUnit == "" {
		return nil, fmt.Errorf("%w: ad unit is required", ErrProvider)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ad := &MockAd{
		unit:      adUnit,
		script:    m.script,
		listeners: make(map[EventKind]*stream.Hub[Event]),
	}
	m.ads = append(m.ads, ad)
	obs.Logger().Debug("ads.mock.created", "ad_unit", adUnit)
	return ad, nil
}

// Ads returns every ad created so far.
func (m *Mock) Ads() []*MockAd {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockAd(nil), m.ads...)
}

var _ Ad = (*MockAd)(nil)

// MockAd is the ad object handed out by Mock.
type MockAd struct {
	unit   string
	script Script

	mu        sync.Mutex
	listeners map[EventKind]*stream.Hub[Event]
	loads     int
	shows     int
}

func (a *MockAd) Load() error {
	a.mu.Lock()
	a.loads++
	a.mu.Unlock()

	if a.script.FailLoad {
		time.AfterFunc(a.script.LoadDelay, func() {
			a.Emit(Event{Kind: EventError, Err: fmt.Errorf("%w: no fill", ErrProvider)})
		})
		return nil
	}
	time.AfterFunc(a.script.LoadDelay, func() { a.Emit(Event{Kind: EventLoaded}) })
	return nil
}

func (a *MockAd) Show() error {
	a.mu.Lock()
	a.shows++
	a.mu.Unlock()

	a.Emit(Event{Kind: EventOpened})
	if !a.script.SkipEarn {
		time.AfterFunc(a.script.EarnDelay, func() {
			a.Emit(Event{Kind: EventEarnedReward, Reward: a.script.Reward})
			if a.script.EarnTwice {
				a.Emit(Event{Kind: EventEarnedReward, Reward: a.script.Reward})
			}
		})
	}
	time.AfterFunc(a.script.CloseDelay, func() { a.Emit(Event{Kind: EventClosed}) })
	return nil
}

func (a *MockAd) AddListener(kind EventKind, fn func(Event)) func() {
	return a.hub(kind).Subscribe(fn)
}

// Emit delivers ev to the listeners of its kind.
func (a *MockAd) Emit(ev Event) {
	a.hub(ev.Kind).Publish(ev)
}

// Listeners counts the callbacks still registered across all kinds.
func (a *MockAd) Listeners() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, h := range a.listeners {
		n += h.Len()
	}
	return n
}

// Calls reports how many times Load and Show were invoked.
func (a *MockAd) Calls() (loads, shows int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loads, a.shows
}

func (a *MockAd) hub(kind EventKind) *stream.Hub[Event] {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.listeners[kind]
	if !ok {
		h = stream.New[Event]()
		a.listeners[kind] = h
	}
	return h
}
