package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pitchgate.app/internal/audit"
	"pitchgate.app/internal/linkparse"
	"pitchgate.app/internal/obs"
)

type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	Loading       bool       `json:"loading"`
	UserID        string     `json:"user_id,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if a.deps.Sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "identity unavailable")
		return
	}
	resp := sessionResponse{Loading: a.deps.Sessions.Loading()}
	if sess, ok := a.deps.Sessions.Current(); ok {
		resp.Authenticated = true
		resp.UserID = sess.UserID
		resp.SessionID = sess.ID
		if !sess.ExpiresAt.IsZero() {
			exp := sess.ExpiresAt
			resp.ExpiresAt = &exp
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if a.deps.Sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "identity unavailable")
		return
	}
	sess, had := a.deps.Sessions.Current()
	if err := a.deps.Sessions.SignOut(r.Context()); err != nil {
		obs.Logger().ErrorContext(r.Context(), "auth.signout.failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "sign out failed")
		return
	}
	if had {
		_ = audit.LogEvent(r.Context(), "auth.session.ended", map[string]any{
			"user_id":    sess.UserID,
			"session_id": sess.ID,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

type magicLinkRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type magicLinkResponse struct {
	URI string `json:"uri"`
}

// handleMagicLink mints a token pair and returns the sign-in link a mail
// provider would deliver. Posting the link to /v1/links signs the user in.
func (a *API) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	if a.deps.Authority == nil {
		writeError(w, r, http.StatusNotImplemented, "magic links disabled")
		return
	}
	var req magicLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	tokens, err := a.deps.Authority.Issue(userID, strings.TrimSpace(req.Email))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	q := url.Values{}
	q.Set(linkparse.KeyAccessToken, tokens.AccessToken)
	q.Set(linkparse.KeyRefreshToken, tokens.RefreshToken)

	_ = audit.LogEvent(r.Context(), "auth.magic_link.issued", map[string]any{"user_id": userID})
	writeJSON(w, http.StatusCreated, magicLinkResponse{
		URI: fmt.Sprintf("%s://auth/callback?%s", a.scheme, q.Encode()),
	})
}
