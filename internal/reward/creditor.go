// Package reward credits the user's balance for watched rewarded ads.
package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pitchgate.app/internal/ads"
	"pitchgate.app/internal/audit"
	"pitchgate.app/internal/balance"
	"pitchgate.app/internal/identity"
	"pitchgate.app/internal/ids"
	"pitchgate.app/internal/obs"
)

var (
	ErrCoolingDown    = errors.New("reward: cooling down")
	ErrBalanceUpdate  = errors.New("reward: balance update failed")
	ErrAttemptTimeout = errors.New("reward: attempt timed out")
	ErrInvalidAmount  = errors.New("reward: amount must be positive")
)

// Attempt outcomes, used as metric labels.
const (
	OutcomeRejected     = "rejected"
	OutcomeCredited     = "credited"
	OutcomeCreditFailed = "credit_failed"
	OutcomeDismissed    = "dismissed"
	OutcomeFailed       = "failed"
	OutcomeTimeout      = "timeout"
)

const defaultCreditTimeout = 10 * time.Second

// Creditor runs watch-ad attempts against an ad provider and credits the
// signed-in user's balance.
type Creditor struct {
	ads           ads.Provider
	balances      balance.Store
	sessions      identity.Port
	cooldown      *Cooldown
	window        time.Duration
	now           func() time.Time
	afterFunc     func(time.Duration, func()) (stop func() bool)
	creditTimeout time.Duration
}

type Option func(*Creditor)

// WithCooldown overrides the window between attempt starts.
func WithCooldown(d time.Duration) Option {
	return func(c *Creditor) {
		if d > 0 {
			c.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Creditor) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTimer overrides how the attempt timeout is scheduled. It pairs with
// WithClock so that a fake clock drives both the cooldown and the timeout.
func WithTimer(afterFunc func(d time.Duration, f func()) (stop func() bool)) Option {
	return func(c *Creditor) {
		if afterFunc != nil {
			c.afterFunc = afterFunc
		}
	}
}

func WithCreditTimeout(d time.Duration) Option {
	return func(c *Creditor) {
		if d > 0 {
			c.creditTimeout = d
		}
	}
}

func New(provider ads.Provider, balances balance.Store, sessions identity.Port, opts ...Option) *Creditor {
	c := &Creditor{
		ads:           provider,
		balances:      balances,
		sessions:      sessions,
		window:        DefaultCooldown,
		now:           time.Now,
		afterFunc:     realAfterFunc,
		creditTimeout: defaultCreditTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cooldown = NewCooldown(c.window, c.now)
	return c
}

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// CooldownUntil reports whether a new attempt would be rejected and until when.
func (c *Creditor) CooldownUntil() (time.Time, bool) {
	return c.cooldown.Active()
}

// WatchAd starts an attempt. While a cooldown window is active it returns
// ErrCoolingDown and does nothing else. Otherwise the window starts
// immediately, whatever the attempt's outcome, and the attempt runs in the
// background; onCredit is called with the new balance after a credit.
func (c *Creditor) WatchAd(ctx context.Context, amount int64, adUnit string, onCredit func(newBalance int64)) (*Attempt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	until, ok := c.cooldown.Acquire()
	if !ok {
		obs.AdAttempt(OutcomeRejected)
		obs.Logger().Info("reward.attempt.rejected", "cooldown_until", until)
		return nil, fmt.Errorf("%w until %s", ErrCoolingDown, until.Format(time.RFC3339))
	}

	a := newAttempt(ids.New("att"), amount, adUnit, c.now())
	// The attempt outlives the request that started it.
	ctx = audit.WithAttemptID(context.WithoutCancel(ctx), a.ID)
	log := obs.Logger().With("attempt_id", a.ID, "ad_unit", adUnit)
	log.Info("reward.attempt.started", "amount", amount)

	ad, err := c.ads.NewRewarded(adUnit)
	if err != nil {
		a.enter(StateFailed)
		c.finish(a, fmt.Errorf("%w: %w", ads.ErrProvider, err))
		return a, nil
	}

	for _, kind := range []ads.EventKind{ads.EventLoaded, ads.EventEarnedReward, ads.EventClosed, ads.EventError} {
		a.hold(ad.AddListener(kind, a.post))
	}
	stop := c.afterFunc(c.window, func() { a.post(ads.Event{Kind: eventTimeout}) })
	a.hold(func() { stop() })

	a.enter(StateLoading)
	go c.run(ctx, a, ad, onCredit)
	if err := ad.Load(); err != nil {
		a.post(ads.Event{Kind: ads.EventError, Err: err})
	}
	return a, nil
}

func (c *Creditor) run(ctx context.Context, a *Attempt, ad ads.Ad, onCredit func(int64)) {
	for ev := range a.events {
		if c.step(ctx, a, ad, ev, onCredit) {
			return
		}
	}
}

// step applies one event and reports whether the attempt is finished.
// Events without an outgoing edge from the current state are ignored.
func (c *Creditor) step(ctx context.Context, a *Attempt, ad ads.Ad, ev ads.Event, onCredit func(int64)) bool {
	state := a.State()
	switch {
	case ev.Kind == ads.EventError:
		a.enter(StateFailed)
		err := ev.Err
		if err == nil {
			err = ads.ErrProvider
		} else if !errors.Is(err, ads.ErrProvider) {
			err = fmt.Errorf("%w: %w", ads.ErrProvider, err)
		}
		c.finish(a, err)
		return true

	case ev.Kind == eventTimeout && state == StateEarned:
		// The reward was already handled; a missing close is not a failure.
		a.enter(StateClosed)
		c.finish(a, nil)
		return true

	case ev.Kind == eventTimeout:
		a.enter(StateFailed)
		c.finish(a, ErrAttemptTimeout)
		return true

	case ev.Kind == ads.EventLoaded && state == StateLoading:
		a.enter(StateLoaded)
		a.enter(StateShowing)
		if err := ad.Show(); err != nil {
			a.enter(StateFailed)
			c.finish(a, fmt.Errorf("%w: show: %w", ads.ErrProvider, err))
			return true
		}
		return false

	case ev.Kind == ads.EventEarnedReward && state == StateShowing:
		a.enter(StateEarned)
		c.credit(ctx, a, ev.Reward, onCredit)
		return false

	case ev.Kind == ads.EventClosed && (state == StateEarned || state == StateShowing):
		a.enter(StateClosed)
		c.finish(a, nil)
		return true
	}

	obs.Logger().Debug("reward.event.ignored", "attempt_id", a.ID, "event", string(ev.Kind), "state", state.String())
	return false
}

// credit performs the single read-modify-write of the attempt. The amount is
// the caller's; the provider payload is only logged.
func (c *Creditor) credit(ctx context.Context, a *Attempt, payload ads.Reward, onCredit func(int64)) {
	if !a.claimCredit() {
		return
	}
	log := obs.Logger().With("attempt_id", a.ID)

	newBalance, err := c.apply(ctx, a.Amount)
	if err != nil {
		a.setErr(err)
		log.Error("reward.credit.failed", "error", err)
		return
	}
	a.setCredited(newBalance)
	obs.RewardCredited(a.Amount)
	log.Info("reward.credit.applied",
		"amount", a.Amount,
		"new_balance", newBalance,
		"provider_reward_type", payload.Type,
		"provider_reward_amount", payload.Amount,
	)
	if onCredit != nil {
		onCredit(newBalance)
	}
}

func (c *Creditor) apply(ctx context.Context, amount int64) (int64, error) {
	sess, ok := c.sessions.Current()
	if !ok {
		return 0, fmt.Errorf("%w: %w", ErrBalanceUpdate, identity.ErrNoSession)
	}
	ctx = identity.ContextWithUser(ctx, sess.UserID)
	ctx, cancel := context.WithTimeout(ctx, c.creditTimeout)
	defer cancel()

	current, err := c.balances.Balance(ctx, sess.UserID)
	if err != nil {
		return 0, fmt.Errorf("%w: read: %w", ErrBalanceUpdate, err)
	}
	next := current + amount
	if err := c.balances.SetBalance(ctx, sess.UserID, next); err != nil {
		return 0, fmt.Errorf("%w: write: %w", ErrBalanceUpdate, err)
	}
	_ = audit.LogEvent(ctx, "reward.credited", map[string]any{
		"amount":      amount,
		"old_balance": current,
		"new_balance": next,
	})
	return next, nil
}

func (c *Creditor) finish(a *Attempt, err error) {
	if err != nil {
		a.setErr(err)
	}
	a.release()
	close(a.done)

	outcome := c.outcome(a)
	obs.AdAttempt(outcome)
	log := obs.Logger().With("attempt_id", a.ID, "outcome", outcome, "state", a.State().String())
	if err := a.Err(); err != nil {
		log.Warn("reward.attempt.finished", "error", err)
		return
	}
	log.Info("reward.attempt.finished")
}

func (c *Creditor) outcome(a *Attempt) string {
	if _, ok := a.Credited(); ok {
		return OutcomeCredited
	}
	err := a.Err()
	switch {
	case errors.Is(err, ErrAttemptTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrBalanceUpdate):
		return OutcomeCreditFailed
	case err != nil:
		return OutcomeFailed
	}
	return OutcomeDismissed
}
