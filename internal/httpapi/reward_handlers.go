package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pitchgate.app/internal/reward"
)

type linkRequest struct {
	URI string `json:"uri"`
}

func (a *API) handleLink(w http.ResponseWriter, r *http.Request) {
	if a.deps.Links == nil {
		writeError(w, r, http.StatusServiceUnavailable, "link source unavailable")
		return
	}
	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	uri := strings.TrimSpace(req.URI)
	if uri == "" {
		writeError(w, r, http.StatusBadRequest, "uri is required")
		return
	}
	a.deps.Links.Deliver(uri)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

type watchRequest struct {
	Amount int64  `json:"amount,omitempty"`
	AdUnit string `json:"ad_unit,omitempty"`
}

type attemptResponse struct {
	ID            string     `json:"id"`
	State         string     `json:"state"`
	Amount        int64      `json:"amount"`
	AdUnit        string     `json:"ad_unit"`
	StartedAt     time.Time  `json:"started_at"`
	Credited      bool       `json:"credited"`
	NewBalance    *int64     `json:"new_balance,omitempty"`
	Error         string     `json:"error,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

func (a *API) handleWatch(w http.ResponseWriter, r *http.Request) {
	if a.deps.Rewards == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rewards unavailable")
		return
	}
	var req watchRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	amount := req.Amount
	if amount == 0 {
		amount = a.rewardAmount
	}
	adUnit := strings.TrimSpace(req.AdUnit)
	if adUnit == "" {
		adUnit = a.adUnit
	}

	att, err := a.deps.Rewards.WatchAd(r.Context(), amount, adUnit, nil)
	switch {
	case errors.Is(err, reward.ErrCoolingDown):
		if until, ok := a.deps.Rewards.CooldownUntil(); ok {
			secs := int(math.Ceil(time.Until(until).Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeError(w, r, http.StatusTooManyRequests, "cooling down")
		return
	case errors.Is(err, reward.ErrInvalidAmount):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "watch failed")
		return
	}

	a.mu.Lock()
	a.lastAttempt = att
	a.mu.Unlock()
	writeJSON(w, http.StatusAccepted, a.describe(att))
}

func (a *API) handleLastAttempt(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	att := a.lastAttempt
	a.mu.Unlock()
	if att == nil {
		writeError(w, r, http.StatusNotFound, "no attempt yet")
		return
	}
	writeJSON(w, http.StatusOK, a.describe(att))
}

func (a *API) describe(att *reward.Attempt) attemptResponse {
	resp := attemptResponse{
		ID:        att.ID,
		State:     att.State().String(),
		Amount:    att.Amount,
		AdUnit:    att.AdUnit,
		StartedAt: att.StartedAt,
	}
	if v, ok := att.Credited(); ok {
		resp.Credited = true
		resp.NewBalance = &v
	}
	if err := att.Err(); err != nil {
		resp.Error = err.Error()
	}
	if until, ok := a.deps.Rewards.CooldownUntil(); ok {
		resp.CooldownUntil = &until
	}
	return resp
}
