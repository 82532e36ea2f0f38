package httpapi

import (
	"net/http"
	"strings"
)

type routeResponse struct {
	Location string   `json:"location"`
	Segments []string `json:"segments"`
	History  []string `json:"history"`
}

type navigateRequest struct {
	Path    string `json:"path"`
	Replace bool   `json:"replace"`
}

func (a *API) handleRoute(w http.ResponseWriter, r *http.Request) {
	if a.deps.Routes == nil {
		writeError(w, r, http.StatusServiceUnavailable, "router unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a.routeState())
}

func (a *API) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if a.deps.Routes == nil {
		writeError(w, r, http.StatusServiceUnavailable, "router unavailable")
		return
	}
	var req navigateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	path := strings.TrimSpace(req.Path)
	if !strings.HasPrefix(path, "/") {
		writeError(w, r, http.StatusBadRequest, "path must start with /")
		return
	}
	if req.Replace {
		a.deps.Routes.Replace(path)
	} else {
		a.deps.Routes.Push(path)
	}
	writeJSON(w, http.StatusOK, a.routeState())
}

func (a *API) routeState() routeResponse {
	segs := a.deps.Routes.Segments()
	if segs == nil {
		segs = []string{}
	}
	return routeResponse{
		Location: a.deps.Routes.Location(),
		Segments: segs,
		History:  a.deps.Routes.History(),
	}
}
