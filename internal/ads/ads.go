// Package ads is the port to the rewarded-ad SDK.
package ads

import "errors"

// EventKind names a provider callback.
type EventKind string

const (
	EventLoaded       EventKind = "loaded"
	EventOpened       EventKind = "opened"
	EventEarnedReward EventKind = "earned_reward"
	EventClosed       EventKind = "closed"
	EventError        EventKind = "error"
)

var ErrProvider = errors.New("ads: provider error")

// Reward is the payload reported with EventEarnedReward.
type Reward struct {
	Type   string
	Amount int64
}

// Event is delivered to listeners registered with Ad.AddListener.
type Event struct {
	Kind   EventKind
	Reward Reward
	Err    error
}

// Ad is one rewarded ad object. Callbacks may arrive on any goroutine.
type Ad interface {
	Load() error
	Show() error
	AddListener(kind EventKind, fn func(Event)) (unsubscribe func())
}

// Provider creates rewarded ads for an ad unit.
type Provider interface {
	NewRewarded(adUnit string) (Ad, error)
}
