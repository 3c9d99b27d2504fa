package disposable

import (
	"context"
	"errors"
	"log/slog"
)

// FallbackObserver is notified when the primary strategy fails.
type FallbackObserver interface {
	IncDisposableFallback(reason string)
}

// Fallback asks primary first and secondary whenever primary errors.
type Fallback struct {
	primary   Detector
	secondary Detector
	logger    *slog.Logger
	observer  FallbackObserver
}

func NewFallback(primary, secondary Detector, logger *slog.Logger, observer FallbackObserver) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger, observer: observer}
}

func (f *Fallback) IsDisposable(ctx context.Context, domain string) (bool, error) {
	blocked, err := f.primary.IsDisposable(ctx, domain)
	if err == nil {
		return blocked, nil
	}
	f.logger.WarnContext(ctx, "disposable check falling back to library",
		"domain", domain,
		"error", err,
	)
	if f.observer != nil {
		f.observer.IncDisposableFallback(reasonFor(err))
	}
	return f.secondary.IsDisposable(ctx, domain)
}

func reasonFor(err error) string {
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_open"
	}
	return "api_error"
}
