// Package metrics holds the Prometheus instruments for the signup service.
// All methods are safe on a nil *Metrics so components can run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SignupSubmissions    *prometheus.CounterVec
	ValidationFailures   *prometheus.CounterVec
	ProvisioningDuration prometheus.Histogram
	AccountsProvisioned  prometheus.Counter
	AuthAccountsLinked   prometheus.Counter
	DisposableFallbacks  *prometheus.CounterVec
	DisposableCache      *prometheus.CounterVec
	DNSTransientErrors   prometheus.Counter
	RateLimited          *prometheus.CounterVec
	RateLimitFallbacks   prometheus.Counter
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SignupSubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_submissions_total",
			Help: "Signup submissions by outcome (success, invalid, duplicate, error)",
		}, []string{"outcome"}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_validation_failures_total",
			Help: "Validation messages produced, by pipeline stage",
		}, []string{"stage"}),
		ProvisioningDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "signup_provisioning_duration_seconds",
			Help:    "Time spent in the account provisioning transaction",
			Buckets: prometheus.DefBuckets,
		}),
		AccountsProvisioned: f.NewCounter(prometheus.CounterOpts{
			Name: "signup_accounts_provisioned_total",
			Help: "Primary accounts created",
		}),
		AuthAccountsLinked: f.NewCounter(prometheus.CounterOpts{
			Name: "signup_auth_accounts_linked_total",
			Help: "Existing auth accounts linked to a new primary account",
		}),
		DisposableFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_disposable_fallbacks_total",
			Help: "Disposable-domain checks that fell back to a weaker strategy",
		}, []string{"reason"}),
		DisposableCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_disposable_cache_total",
			Help: "Disposable verdict cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		DNSTransientErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "signup_dns_transient_errors_total",
			Help: "MX lookups that failed transiently and used the structural fallback",
		}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter, by endpoint class",
		}, []string{"class"}),
		RateLimitFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "signup_rate_limit_fallbacks_total",
			Help: "Rate limit checks answered by the in-memory fallback store",
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signup_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncSubmission(outcome string) {
	if m == nil {
		return
	}
	m.SignupSubmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncValidationFailure(stage string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveProvisioning(d time.Duration) {
	if m == nil {
		return
	}
	m.ProvisioningDuration.Observe(d.Seconds())
}

func (m *Metrics) IncAccountsProvisioned() {
	if m == nil {
		return
	}
	m.AccountsProvisioned.Inc()
}

func (m *Metrics) IncAuthAccountsLinked() {
	if m == nil {
		return
	}
	m.AuthAccountsLinked.Inc()
}

func (m *Metrics) IncDisposableFallback(reason string) {
	if m == nil {
		return
	}
	m.DisposableFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncDisposableCache(result string) {
	if m == nil {
		return
	}
	m.DisposableCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncDNSTransientError() {
	if m == nil {
		return
	}
	m.DNSTransientErrors.Inc()
}

func (m *Metrics) IncRateLimited(class string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(class).Inc()
}

func (m *Metrics) IncRateLimitFallback() {
	if m == nil {
		return
	}
	m.RateLimitFallbacks.Inc()
}

// Middleware records request latency labelled by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
