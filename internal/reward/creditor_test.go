package reward

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"pitchgate.app/internal/ads"
	"pitchgate.app/internal/balance"
	"pitchgate.app/internal/identity"
)

func quickScript() ads.Script {
	return ads.Script{
		LoadDelay:  5 * time.Millisecond,
		EarnDelay:  10 * time.Millisecond,
		CloseDelay: 60 * time.Millisecond,
		Reward:     ads.Reward{Type: "coins", Amount: 1},
	}
}

func seeded(userID string, v int64) *countingStore {
	m := balance.NewMemory()
	m.Seed(userID, v)
	return &countingStore{Store: m}
}

func waitDone(t *testing.T, a *Attempt) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	select {
	case <-a.Done():
	case <-ctx.Done():
		t.Fatalf("attempt %s did not finish, state %s", a.ID, a.State())
	}
}

func TestWatchAdCreditsCallerAmount(t *testing.T) {
	store := seeded("u1", 100000)
	c := New(ads.NewMock(quickScript()), store, signedIn("u1"))

	credited := make(chan int64, 1)
	a, err := c.WatchAd(context.Background(), 50000, "unit-1", func(v int64) { credited <- v })
	if err != nil {
		t.Fatalf("WatchAd: %v", err)
	}
	waitDone(t, a)

	if err := a.Err(); err != nil {
		t.Fatalf("unexpected attempt error: %v", err)
	}
	if v, _ := store.Balance(context.Background(), "u1"); v != 150000 {
		t.Fatalf("expected balance 150000, got %d", v)
	}
	select {
	case v := <-credited:
		if v != 150000 {
			t.Fatalf("onCredit got %d", v)
		}
	default:
		t.Fatal("onCredit not called")
	}
	want := []State{StateIdle, StateLoading, StateLoaded, StateShowing, StateEarned, StateClosed}
	if got := a.Trace(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected trace %v", got)
	}
}

func TestDuplicateEarnCreditsOnce(t *testing.T) {
	script := quickScript()
	script.EarnTwice = true
	store := seeded("u1", 100000)
	c := New(ads.NewMock(script), store, signedIn("u1"))

	a, err := c.WatchAd(context.Background(), 50000, "unit-1", nil)
	if err != nil {
		t.Fatalf("WatchAd: %v", err)
	}
	waitDone(t, a)

	if n := store.Writes(); n != 1 {
		t.Fatalf("expected exactly one balance write, got %d", n)
	}
	if v, _ := store.Balance(context.Background(), "u1"); v != 150000 {
		t.Fatalf("expected balance 150000, got %d", v)
	}
}

func TestSecondWatchWithinCooldownRejected(t *testing.T) {
	clock := newFakeClock()
	script := quickScript()
	script.FailLoad = true
	c := New(ads.NewMock(script), seeded("u1", 0), signedIn("u1"), WithClock(clock.Now))

	first, err := c.WatchAd(context.Background(), 10, "unit-1", nil)
	if err != nil {
		t.Fatalf("first WatchAd: %v", err)
	}
	waitDone(t, first)
	if first.State() != StateFailed {
		t.Fatalf("expected failed attempt, got %s", first.State())
	}

	clock.Advance(59 * time.Second)
	if _, err := c.WatchAd(context.Background(), 10, "unit-1", nil); !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("expected ErrCoolingDown, got %v", err)
	}
	if _, active := c.CooldownUntil(); !active {
		t.Fatal("cooldown should be reported active")
	}

	clock.Advance(time.Second)
	next, err := c.WatchAd(context.Background(), 10, "unit-1", nil)
	if err != nil {
		t.Fatalf("WatchAd after cooldown: %v", err)
	}
	waitDone(t, next)
}

func TestProviderErrorFailsAndReleasesListeners(t *testing.T) {
	script := quickScript()
	script.FailLoad = true
	mock := ads.NewMock(script)
	store := seeded("u1", 100)
	c := New(mock, store, signedIn("u1"))

	a, err := c.WatchAd(context.Background(), 50, "unit-1", nil)
	if err != nil {
		t.Fatalf("WatchAd: %v", err)
	}
	waitDone(t, a)

	if !errors.Is(a.Err(), ads.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", a.Err())
	}
	if a.State() != StateFailed {
		t.Fatalf("expected failed, got %s", a.State())
	}
	if n := mock.Ads()[0].Listeners(); n != 0 {
		t.Fatalf("listeners leaked: %d", n)
	}
	if store.Writes() != 0 {
		t.Fatal("failed attempt must not credit")
	}
}

func TestBalanceUpdateFailure(t *testing.T) {
	store := seeded("u1", 100)
	store.writeErr = errors.New("connection reset")
	c := New(ads.NewMock(quickScript()), store, signedIn("u1"))

	called := false
	a, err := c.WatchAd(context.Background(), 50, "unit-1", func(int64) { called = true })
	if err != nil {
		t.Fatalf("WatchAd: %v", err)
	}
	waitDone(t, a)

	if !errors.Is(a.Err(), ErrBalanceUpdate) {
		t.Fatalf("expected ErrBalanceUpdate, got %v", a.Err())
	}
	if a.State() != StateClosed {
		t.Fatalf("expected closed, got %s", a.State())
	}
	if _, ok := a.Credited(); ok || called {
		t.Fatal("failed write must not count as credited")
	}
	if v, _ := store.Balance(context.Background(), "u1"); v != 100 {
		t.Fatalf("balance changed to %d", v)
	}
}

func TestCreditWithoutSession(t *testing.T) {
	c := New(ads.NewMock(quickScript()), seeded("u1", 100), signedOut())

	a, err := c.WatchAd(context.Background(), 50, "unit-1", nil)
	if err != nil {
		t.Fatalf("WatchAd: %v", err)
	}
	waitDone(t, a)

	if !errors.Is(a.Err(), ErrBalanceUpdate) || !errors.Is(a.Err(), identity.ErrNoSession) {
		t.Fatalf("expected ErrBalanceUpdate wrapping ErrNoSession, got %v", a.Err())
	}
}

func TestAttemptTimesOutWithCooldown(t *testing.T) {
	provider := &manualProvider{}
	c := New(provider, seeded("u1", 0), signedIn("u1"), WithCooldown(20*time.Millisecond))

	a, err := c.WatchAd(context.Background(), 1, "unit-1", nil)
	if err != nil {
		t.Fatalf("WatchAd: %v", err)
	}
	waitDone(t, a)

	if !errors.Is(a.Err(), ErrAttemptTimeout) {
		t.Fatalf("expected ErrAttemptTimeout, got %v", a.Err())
	}
	if n := provider.last().listeners(); n != 0 {
		t.Fatalf("listeners leaked: %d", n)
	}
}

func TestTimeoutAfterCreditClosesAttempt(t *testing.T) {
	clock := newFakeClock()
	provider := &manualProvider{}
	store := seeded("u1", 100)
	c := New(provider, store, signedIn("u1"), WithClock(clock.Now), WithTimer(clock.AfterFunc))

	credited := make(chan int64, 1)
	a, err := c.WatchAd(context.Background(), 25, "unit-1", func(v int64) { credited <- v })
	if err != nil {
		t.Fatalf("WatchAd: %v", err)
	}
	ad := provider.last()
	ad.emit(ads.Event{Kind: ads.EventLoaded})
	select {
	case <-ad.shown:
	case <-time.After(2 * time.Second):
		t.Fatal("ad was never shown")
	}
	ad.emit(ads.Event{Kind: ads.EventEarnedReward})
	select {
	case <-credited:
	case <-time.After(2 * time.Second):
		t.Fatal("onCredit not called")
	}
	// No close event; the window elapses.
	clock.Advance(DefaultCooldown)
	waitDone(t, a)

	if err := a.Err(); err != nil {
		t.Fatalf("credited attempt reported %v", err)
	}
	if a.State() != StateClosed {
		t.Fatalf("expected closed, got %s", a.State())
	}
	if v, ok := a.Credited(); !ok || v != 125 {
		t.Fatalf("expected credit to 125, got %d %v", v, ok)
	}
	if got := c.outcome(a); got != OutcomeCredited {
		t.Fatalf("expected outcome %s, got %s", OutcomeCredited, got)
	}
	if n := ad.listeners(); n != 0 {
		t.Fatalf("listeners leaked: %d", n)
	}
}

func TestFakeClockDrivesTimeoutAndCooldown(t *testing.T) {
	clock := newFakeClock()
	provider := &manualProvider{}
	c := New(provider, seeded("u1", 0), signedIn("u1"), WithClock(clock.Now), WithTimer(clock.AfterFunc))

	first, err := c.WatchAd(context.Background(), 1, "unit-1", nil)
	if err != nil {
		t.Fatalf("WatchAd: %v", err)
	}
	clock.Advance(59 * time.Second)
	select {
	case <-first.Done():
		t.Fatalf("attempt finished before the window elapsed: %v", first.Err())
	case <-time.After(20 * time.Millisecond):
	}
	if _, err := c.WatchAd(context.Background(), 1, "unit-1", nil); !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("expected ErrCoolingDown, got %v", err)
	}

	clock.Advance(time.Second)
	waitDone(t, first)
	if !errors.Is(first.Err(), ErrAttemptTimeout) {
		t.Fatalf("expected ErrAttemptTimeout, got %v", first.Err())
	}
	if first.State() != StateFailed {
		t.Fatalf("expected failed, got %s", first.State())
	}

	next, err := c.WatchAd(context.Background(), 1, "unit-1", nil)
	if err != nil {
		t.Fatalf("WatchAd after window: %v", err)
	}
	if next.State().Terminal() {
		t.Fatalf("new attempt already %s", next.State())
	}
}

func TestUnexpectedEventsIgnored(t *testing.T) {
	provider := &manualProvider{}
	store := seeded("u1", 0)
	c := New(provider, store, signedIn("u1"))

	a, err := c.WatchAd(context.Background(), 5, "unit-1", nil)
	if err != nil {
		t.Fatalf("WatchAd: %v", err)
	}
	ad := provider.last()

	ad.emit(ads.Event{Kind: ads.EventEarnedReward})
	ad.emit(ads.Event{Kind: ads.EventLoaded})
	select {
	case <-ad.shown:
	case <-time.After(2 * time.Second):
		t.Fatal("ad was never shown")
	}
	ad.emit(ads.Event{Kind: ads.EventLoaded})
	ad.emit(ads.Event{Kind: ads.EventClosed})
	waitDone(t, a)

	want := []State{StateIdle, StateLoading, StateLoaded, StateShowing, StateClosed}
	if got := a.Trace(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected trace %v", got)
	}
	if _, ok := a.Credited(); ok || store.Writes() != 0 {
		t.Fatal("dismissed ad must not credit")
	}

	ad.emit(ads.Event{Kind: ads.EventError})
	if a.State() != StateClosed {
		t.Fatalf("terminal state changed to %s", a.State())
	}
}

func TestWatchAdRejectsNonPositiveAmount(t *testing.T) {
	c := New(&manualProvider{}, seeded("u1", 0), signedIn("u1"))
	if _, err := c.WatchAd(context.Background(), 0, "unit-1", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, active := c.CooldownUntil(); active {
		t.Fatal("rejected call must not start a cooldown")
	}
}
