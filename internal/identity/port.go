package identity

import "context"

// Port is the identity provider as seen by the gate, the deep-link bridge
// and the reward creditor. Readers must call Current again after any await
// instead of keeping a copy.
type Port interface {
	Current() (Session, bool)
	Loading() bool
	SetSession(ctx context.Context, tokens Tokens) (Session, error)
	SignOut(ctx context.Context) error
	OnChange(fn func(Change)) (unsubscribe func())
}

// SessionStore persists the current session on the device.
type SessionStore interface {
	Load(ctx context.Context) (Session, bool, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}
