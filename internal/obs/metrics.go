package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	deepLinks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchgate_deeplinks_total",
			Help: "Inbound deep links by handling outcome.",
		},
		[]string{"outcome"},
	)

	redirects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchgate_redirects_total",
			Help: "Redirects applied by the session gate.",
		},
		[]string{"target"},
	)

	adAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchgate_ad_attempts_total",
			Help: "Rewarded ad attempts by outcome.",
		},
		[]string{"outcome"},
	)

	rewardCredited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pitchgate_reward_credited_total",
		Help: "Sum of whole currency units credited for watched ads.",
	})

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitchgate_http_requests_total",
			Help: "Control API requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pitchgate_http_request_duration_seconds",
			Help:    "Control API latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Init registers the collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(deepLinks, redirects, adAttempts, rewardCredited, httpRequests, httpDuration)
	})
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func DeepLink(outcome string) { deepLinks.WithLabelValues(outcome).Inc() }

func Redirect(target string) { redirects.WithLabelValues(target).Inc() }

func AdAttempt(outcome string) { adAttempts.WithLabelValues(outcome).Inc() }

func RewardCredited(amount int64) { rewardCredited.Add(float64(amount)) }

// Instrument records count and latency for every request passing through next.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := CanonicalPath(r.URL.Path)
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(sw.code)).Inc()
	})
}

// CanonicalPath keeps metric label cardinality bounded.
func CanonicalPath(p string) string {
	switch p {
	case "/healthz", "/readyz", "/metrics",
		"/v1/session", "/v1/route", "/v1/links", "/v1/events",
		"/v1/rewards/watch", "/v1/rewards/last",
		"/v1/auth/signout", "/v1/auth/magic-link":
		return p
	case "":
		return "/"
	}
	return "other"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
