package identity

import "time"

// Tokens is the credential pair delivered by a sign-in link.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Session is the proof of authentication held by the identity provider.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Change is published whenever the session or the loading flag changes.
type Change struct {
	Session Session
	Present bool
	Loading bool
}
