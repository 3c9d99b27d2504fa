package testutil

import (
	"context"
	"net/http"

	"onboard/pkg/requestcontext"
)

// WithClientMetadata adds client IP and User-Agent to the request context.
// This simulates what the metadata middleware would do.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}

// WithAdmin marks the request as coming from an authenticated admin caller.
func WithAdmin(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithAdminActor(req.Context(), actor))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
