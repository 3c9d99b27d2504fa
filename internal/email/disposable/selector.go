package disposable

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"onboard/internal/settings/models"
)

// Selector picks the detection chain for the policy in force on a request.
type Selector struct {
	library  Detector
	api      *APIClient
	redis    redis.Cmdable
	cacheTTL time.Duration
	logger   *slog.Logger
	observer Observer
}

// Observer receives fallback and cache counters.
type Observer interface {
	FallbackObserver
	CacheObserver
}

type SelectorOption func(*Selector)

// WithAPI enables the "api" method. Without it the library list is always used.
func WithAPI(api *APIClient) SelectorOption {
	return func(s *Selector) { s.api = api }
}

// WithCache puts a Redis verdict cache in front of the API.
func WithCache(client redis.Cmdable, ttl time.Duration) SelectorOption {
	return func(s *Selector) {
		s.redis = client
		s.cacheTTL = ttl
	}
}

func WithObserver(o Observer) SelectorOption {
	return func(s *Selector) { s.observer = o }
}

func WithLogger(logger *slog.Logger) SelectorOption {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSelector(library Detector, opts ...SelectorOption) *Selector {
	s := &Selector{library: library, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// For returns the detector for policy: the library list, or the API chain
// (cache, API, then library on any API error).
func (s *Selector) For(policy models.EmailPolicy) Detector {
	if policy.DisposableMethod != models.DisposableAPI || s.api == nil {
		return s.library
	}
	var primary Detector = s.api.WithKey(policy.APIKey)
	if s.redis != nil {
		primary = NewCached(primary, s.redis, s.cacheTTL, s.logger, s.observer)
	}
	var fo FallbackObserver
	if s.observer != nil {
		fo = s.observer
	}
	return NewFallback(primary, s.library, s.logger, fo)
}
