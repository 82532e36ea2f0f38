package ads

import (
	"errors"
	"testing"
	"time"
)

func TestMockPlaysScript(t *testing.T) {
	m := NewMock(Script{Reward: Reward{Type: "coins", Amount: 1}})
	ad, err := m.NewRewarded("unit-1")
	if err != nil {
		t.Fatalf("NewRewarded: %v", err)
	}

	events := make(chan Event, 8)
	for _, k := range []EventKind{EventLoaded, EventEarnedReward, EventClosed} {
		ad.AddListener(k, func(ev Event) { events <- ev })
	}
	if err := ad.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ev := next(t, events); ev.Kind != EventLoaded {
		t.Fatalf("expected loaded, got %v", ev.Kind)
	}
	if err := ad.Show(); err != nil {
		t.Fatalf("Show: %v", err)
	}
	seen := map[EventKind]Event{}
	for i := 0; i < 2; i++ {
		ev := next(t, events)
		seen[ev.Kind] = ev
	}
	if seen[EventEarnedReward].Reward.Amount != 1 {
		t.Fatalf("unexpected reward payload: %+v", seen[EventEarnedReward])
	}
	if _, ok := seen[EventClosed]; !ok {
		t.Fatal("closed not emitted")
	}
	if loads, shows := m.Ads()[0].Calls(); loads != 1 || shows != 1 {
		t.Fatalf("unexpected calls: loads=%d shows=%d", loads, shows)
	}
}

func TestMockFailLoad(t *testing.T) {
	m := NewMock(Script{FailLoad: true})
	ad, _ := m.NewRewarded("unit-1")
	errs := make(chan Event, 1)
	unsub := ad.AddListener(EventError, func(ev Event) { errs <- ev })

	_ = ad.Load()
	if ev := next(t, errs); !errors.Is(ev.Err, ErrProvider) {
		t.Fatalf("expected provider error, got %v", ev.Err)
	}
	unsub()
	if n := m.Ads()[0].Listeners(); n != 0 {
		t.Fatalf("listener leaked: %d", n)
	}
}

func TestMockRequiresAdUnit(t *testing.T) {
	if _, err := NewMock(DefaultScript()).NewRewarded(""); !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
