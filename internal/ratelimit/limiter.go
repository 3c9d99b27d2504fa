package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"onboard/pkg/platform/circuit"
	"onboard/pkg/platform/httputil"
	request "onboard/pkg/platform/middleware/request"
	"onboard/pkg/requestcontext"
)

// DefaultLimits applies when no override is configured.
var DefaultLimits = map[EndpointClass]Limit{
	ClassValidate: {Requests: 120, Window: time.Minute},
	ClassSubmit:   {Requests: 10, Window: time.Minute},
}

// Observer counts rejected and degraded checks.
type Observer interface {
	IncRateLimited(class string)
	IncRateLimitFallback()
}

// Limiter checks windows in the primary store and switches to the fallback
// store while the breaker is open.
type Limiter struct {
	primary  Store
	fallback *InMemoryStore
	breaker  *circuit.Breaker
	limits   map[EndpointClass]Limit
	disabled bool
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

type Option func(*Limiter)

// WithPrimary sets the shared store. Without one the fallback store is used alone.
func WithPrimary(store Store) Option {
	return func(l *Limiter) { l.primary = store }
}

func WithLimit(class EndpointClass, limit Limit) Option {
	return func(l *Limiter) {
		if limit.Requests > 0 && limit.Window > 0 {
			l.limits[class] = limit
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		if b != nil {
			l.breaker = b
		}
	}
}

// WithDisabled turns every check into a pass.
func WithDisabled(disabled bool) Option {
	return func(l *Limiter) { l.disabled = disabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(l *Limiter) {
		if o != nil {
			l.observer = o
		}
	}
}

type noopObserver struct{}

func (noopObserver) IncRateLimited(string) {}
func (noopObserver) IncRateLimitFallback() {}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		fallback: NewInMemoryStore(),
		breaker:  circuit.New("ratelimit-store"),
		limits:   make(map[EndpointClass]Limit, len(DefaultLimits)),
		logger:   slog.Default(),
		observer: noopObserver{},
		now:      time.Now,
	}
	for class, limit := range DefaultLimits {
		l.limits[class] = limit
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request from ip on class. degraded is true when the
// fallback store answered.
func (l *Limiter) Check(ctx context.Context, ip string, class EndpointClass) (res *Result, degraded bool, err error) {
	limit, ok := l.limits[class]
	if !ok {
		return &Result{Allowed: true}, false, nil
	}
	key := Key(class, ip)

	if l.primary != nil && l.breaker.Allow() {
		res, err := l.primary.AllowN(ctx, key, 1, limit.Requests, limit.Window)
		if err == nil {
			if _, change := l.breaker.RecordSuccess(); change.Closed {
				l.logger.InfoContext(ctx, "rate limit store recovered")
			}
			return res, false, nil
		}
		if _, change := l.breaker.RecordFailure(); change.Opened {
			l.logger.WarnContext(ctx, "rate limit store failing, using in-memory windows",
				"error", err,
			)
		}
	}
	if l.primary != nil {
		l.observer.IncRateLimitFallback()
		degraded = true
	}
	res, err = l.fallback.AllowN(ctx, key, 1, limit.Requests, limit.Window)
	return res, degraded, err
}

// RunSweeper drops idle in-memory windows every interval until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.fallback.Sweep()
		}
	}
}

// Middleware throttles requests on class by client IP. Store errors let the
// request through.
func (l *Limiter) Middleware(class EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			res, degraded, err := l.Check(ctx, ip, class)
			if err != nil {
				l.logger.ErrorContext(ctx, "failed to check rate limit",
					"request_id", request.GetRequestID(ctx),
					"class", string(class),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addHeaders(w, res, degraded)
			if !res.Allowed {
				l.observer.IncRateLimited(string(class))
				l.logger.InfoContext(ctx, "rate limit exceeded",
					"request_id", request.GetRequestID(ctx),
					"class", string(class),
				)
				retryAfter := res.RetryAfter(l.now())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests. Please try again later.",
					RetryAfter: retryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type exceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

func addHeaders(w http.ResponseWriter, res *Result, degraded bool) {
	if res.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if degraded {
		w.Header().Set("X-RateLimit-Status", "degraded")
	}
}
