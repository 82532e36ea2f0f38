// Package gate keeps navigation consistent with the authentication session.
package gate

// Decision is the navigation action derived from the session and the route.
type Decision int

const (
	None Decision = iota
	ToLogin
	ToHome
)

const (
	AuthGroup = "auth"
	LoginPath = "/auth/login"
	HomePath  = "/tabs/home"
)

func (d Decision) String() string {
	switch d {
	case ToLogin:
		return "to_login"
	case ToHome:
		return "to_home"
	default:
		return "none"
	}
}

// Snapshot is one consistent read of the gate inputs.
type Snapshot struct {
	SessionPresent bool
	Loading        bool
	FirstSegment   string
}

// Decide redirects only from the two inconsistent states: signed out outside
// the auth group, or signed in inside it. Nothing is decided while loading.
func Decide(sessionPresent, loading bool, firstSegment string) Decision {
	if loading {
		return None
	}
	inAuthGroup := firstSegment == AuthGroup
	switch {
	case !sessionPresent && !inAuthGroup:
		return ToLogin
	case sessionPresent && inAuthGroup:
		return ToHome
	default:
		return None
	}
}

// Decide evaluates the snapshot.
func (s Snapshot) Decide() Decision {
	return Decide(s.SessionPresent, s.Loading, s.FirstSegment)
}
