package disposable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"onboard/pkg/platform/circuit"
)

// BlockScoreThreshold is the reputation score at or above which a domain is blocked.
const BlockScoreThreshold = 90

// ErrCircuitOpen is returned while the API breaker is open and no probe is due.
var ErrCircuitOpen = errors.New("disposable api circuit open")

type apiRequest struct {
	Domain string `json:"domain"`
}

type apiResponse struct {
	Score int `json:"score"`
	Meta  struct {
		BlockList bool `json:"block_list"`
	} `json:"meta"`
}

// APIClient asks a remote reputation endpoint about a domain. Concurrent lookups of
// the same domain share one request, and repeated failures open a circuit breaker so
// callers fall back without waiting on a dead endpoint.
type APIClient struct {
	url     string
	apiKey  string
	client  *http.Client
	breaker *circuit.Breaker
	group   *singleflight.Group
	logger  *slog.Logger
}

type APIOption func(*APIClient)

func WithHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) {
		if c != nil {
			a.client = c
		}
	}
}

func WithTimeout(d time.Duration) APIOption {
	return func(a *APIClient) {
		if d > 0 {
			a.client.Timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) APIOption {
	return func(a *APIClient) {
		if b != nil {
			a.breaker = b
		}
	}
}

func WithAPILogger(logger *slog.Logger) APIOption {
	return func(a *APIClient) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAPIClient(url string, opts ...APIOption) *APIClient {
	a := &APIClient{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuit.New("disposable-api"),
		group:   &singleflight.Group{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithKey returns a client that sends apiKey, sharing the breaker and request group.
// The key is a settings value, so it is bound per request. Lookups are only shared
// between callers using the same key.
func (a *APIClient) WithKey(apiKey string) *APIClient {
	cp := *a
	cp.apiKey = apiKey
	return &cp
}

func (a *APIClient) IsDisposable(ctx context.Context, domain string) (bool, error) {
	if !a.breaker.Allow() {
		return false, ErrCircuitOpen
	}
	// The shared call outlives any one caller; the client timeout bounds it.
	ch := a.group.DoChan(a.apiKey+"|"+domain, func() (any, error) {
		return a.lookup(context.WithoutCancel(ctx), domain)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		if _, change := a.breaker.RecordFailure(); change.Opened {
			a.logger.WarnContext(ctx, "disposable api circuit opened", "error", err)
		}
		return false, err
	}
	if _, change := a.breaker.RecordSuccess(); change.Closed {
		a.logger.InfoContext(ctx, "disposable api circuit closed")
	}
	return v.(bool), nil
}

func (a *APIClient) lookup(ctx context.Context, domain string) (bool, error) {
	body, err := json.Marshal(apiRequest{Domain: domain})
	if err != nil {
		return false, fmt.Errorf("encode disposable api request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build disposable api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("call disposable api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("disposable api returned status %d", resp.StatusCode)
	}

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return false, fmt.Errorf("decode disposable api response: %w", err)
	}
	return out.Meta.BlockList || out.Score >= BlockScoreThreshold, nil
}
