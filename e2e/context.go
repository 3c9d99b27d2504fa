// Package e2e drives a running signup service through Gherkin scenarios.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TestContext carries the HTTP client and the last response across the steps of
// one scenario.
type TestContext struct {
	BaseURL    string
	AdminToken string
	client     *http.Client

	clientIP   string
	lastStatus int
	lastBody   []byte
	lastHeader http.Header
	runID      string
}

// NewTestContext reads E2E_BASE_URL (default http://localhost:8080) and
// E2E_ADMIN_TOKEN. Scenarios pick client IPs through X-Forwarded-For, so the
// server under test must list the runner in TRUSTED_PROXIES.
func NewTestContext() *TestContext {
	base := os.Getenv("E2E_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return &TestContext{
		BaseURL:    strings.TrimRight(base, "/"),
		AdminToken: os.Getenv("E2E_ADMIN_TOKEN"),
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Reset clears per-scenario state. Every scenario gets its own client IP and a
// run id that keeps generated emails unique across runs.
func (tc *TestContext) Reset() {
	now := time.Now().UnixNano()
	tc.runID = fmt.Sprintf("%x", now)
	tc.clientIP = fmt.Sprintf("198.51.%d.%d", (now/256)%256, now%254+1)
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeader = nil
}

// UniqueEmail turns "sara@mail.sa" into "sara+<run>@mail.sa".
func (tc *TestContext) UniqueEmail(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return addr
	}
	return local + "+" + tc.runID + "@" + domain
}

func (tc *TestContext) SetClientIP(ip string) { tc.clientIP = ip }

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, nil)
}

func (tc *TestContext) PATCH(path string, body any, headers map[string]string) error {
	return tc.do(http.MethodPatch, path, body, headers)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.clientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.clientIP)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int         { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte        { return tc.lastBody }
func (tc *TestContext) GetLastResponseHeader() http.Header { return tc.lastHeader }

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q missing from response %s", field, tc.lastBody)
	}
	return v, nil
}
