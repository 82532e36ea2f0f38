package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pitchgate.app/internal/identity"
	"pitchgate.app/internal/obs"
	"pitchgate.app/internal/reward"
)

const serviceName = "pitchclient"

// Sessions is the identity provider seen by the control API.
type Sessions interface {
	Current() (identity.Session, bool)
	Loading() bool
	SignOut(ctx context.Context) error
	OnChange(fn func(identity.Change)) func()
}

// Routes is the navigation state seen by the control API.
type Routes interface {
	Location() string
	Segments() []string
	History() []string
	Push(path string)
	Replace(path string) bool
	OnChange(fn func([]string)) func()
}

// Links accepts URIs as if the platform delivered them.
type Links interface {
	Deliver(uri string)
}

// Rewards starts watch-ad attempts.
type Rewards interface {
	WatchAd(ctx context.Context, amount int64, adUnit string, onCredit func(int64)) (*reward.Attempt, error)
	CooldownUntil() (time.Time, bool)
}

// ReadyProbe reports whether backing stores are reachable.
type ReadyProbe func(ctx context.Context) error

type Deps struct {
	Sessions  Sessions
	Routes    Routes
	Links     Links
	Rewards   Rewards
	Authority *identity.Authority
	Probe     ReadyProbe
}

// API is the local control and diagnostic HTTP surface of the client.
type API struct {
	mux  *http.ServeMux
	deps Deps

	version      string
	scheme       string
	rewardAmount int64
	adUnit       string
	controlToken string
	rateBurst    int
	ratePerSec   int

	mu          sync.Mutex
	lastAttempt *reward.Attempt
}

type Option func(*API)

func WithVersion(v string) Option { return func(a *API) { a.version = v } }

func WithScheme(s string) Option { return func(a *API) { a.scheme = s } }

// WithRewardDefaults sets the amount and ad unit used when a watch request omits them.
func WithRewardDefaults(amount int64, adUnit string) Option {
	return func(a *API) {
		a.rewardAmount = amount
		a.adUnit = adUnit
	}
}

// WithControlToken requires "Authorization: Bearer <token>" on non-public paths.
func WithControlToken(token string) Option {
	return func(a *API) { a.controlToken = strings.TrimSpace(token) }
}

func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

func New(deps Deps, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		deps:         deps,
		version:      "dev",
		scheme:       "pitchgate",
		rewardAmount: 50000,
		adUnit:       "rewarded-default",
		rateBurst:    20,
		ratePerSec:   10,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("GET /v1/session", a.handleSession)
	a.mux.HandleFunc("POST /v1/auth/signout", a.handleSignOut)
	a.mux.HandleFunc("POST /v1/auth/magic-link", a.handleMagicLink)

	a.mux.HandleFunc("GET /v1/route", a.handleRoute)
	a.mux.HandleFunc("POST /v1/route", a.handleNavigate)

	a.mux.HandleFunc("POST /v1/links", a.handleLink)

	a.mux.HandleFunc("POST /v1/rewards/watch", a.handleWatch)
	a.mux.HandleFunc("GET /v1/rewards/last", a.handleLastAttempt)

	a.mux.HandleFunc("GET /v1/events", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	return a
}

// Handler wraps the mux with the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

var errRestoring = errors.New("session restore in progress")

// Check is ready once the persisted session was restored and the probe passes.
func (a *API) Check(ctx context.Context) error {
	if a.deps.Sessions != nil && a.deps.Sessions.Loading() {
		return errRestoring
	}
	if a.deps.Probe != nil {
		return a.deps.Probe(ctx)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
