package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"pitchgate.app/internal/identity"
)

// Event is one server-sent notification.
type Event struct {
	Kind          string    `json:"kind"`
	At            time.Time `json:"at"`
	Authenticated *bool     `json:"authenticated,omitempty"`
	Loading       *bool     `json:"loading,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Segments      []string  `json:"segments,omitempty"`
}

// Stream sends session and route changes as Server-Sent Events until the
// client goes away.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.deps.Sessions == nil || a.deps.Routes == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 32)
	push := func(ev Event) {
		select {
		case ch <- ev:
		default:
			// slow consumer, drop
		}
	}
	unsubSession := a.deps.Sessions.OnChange(func(c identity.Change) {
		present, loading := c.Present, c.Loading
		push(Event{Kind: "session", At: time.Now().UTC(), Authenticated: &present, Loading: &loading, UserID: c.Session.UserID})
	})
	defer unsubSession()
	unsubRoute := a.deps.Routes.OnChange(func(segs []string) {
		push(Event{Kind: "route", At: time.Now().UTC(), Segments: segs})
	})
	defer unsubRoute()

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: " + ev.Kind + "\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
