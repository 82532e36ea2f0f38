package identity

import "errors"

var (
	// ErrSessionEstablish wraps every rejection of SetSession.
	ErrSessionEstablish  = errors.New("identity: session not established")
	ErrInvalidToken      = errors.New("identity: invalid token")
	ErrMissingCredential = errors.New("identity: missing credential")
	ErrNoSession         = errors.New("identity: no session")
)
