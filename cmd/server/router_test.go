package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/internal/platform/config"
	"onboard/pkg/testutil"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	cfg.DatabaseURL = ""
	cfg.Redis.URL = ""
	cfg.DNS.Servers = []string{"127.0.0.1:53"}
	cfg.AdminAPIToken = "scaffold-token"
	cfg.BcryptCost = 4

	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func TestRouterScaffold(t *testing.T) {
	testutil.Given(t, "the wired router with in-memory stores", func(t *testing.T) {
		router := newTestApp(t).router

		testutil.When(t, "calling GET /health", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))

			testutil.Then(t, "it reports ok", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "status", "ok")
			})
		})

		testutil.When(t, "calling GET /signup/rules", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/signup/rules"))

			testutil.Then(t, "it publishes the form rules", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONHasKey(t, rr, "countries")
			})
		})

		testutil.When(t, "validating a password", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/signup/validate/password", map[string]string{"password": "Abcdefg1"})
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "it scores the password and carries a request id", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
				assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Limit"))
				testutil.AssertJSONContains(t, rr, "valid", true)
			})
		})

		testutil.When(t, "calling an admin route without the token", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/admin/accounts/"+"00000000-0000-0000-0000-000000000001"))

			testutil.Then(t, "it is rejected", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})
		})

		testutil.When(t, "calling an admin route with a malformed id", func(t *testing.T) {
			req := testutil.NewRequest(t, http.MethodGet, "/admin/accounts/not-an-id")
			req.Header.Set("X-Admin-Token", "scaffold-token")
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "it is a bad request", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
			})
		})

		testutil.When(t, "sending a body that is not JSON", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/signup", "{"))

			testutil.Then(t, "it is a bad request", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusBadRequest)
			})
		})

		testutil.When(t, "scraping /metrics", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

			testutil.Then(t, "signup instruments are exposed", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				body := string(testutil.ReadBody(t, rr))
				assert.True(t, strings.Contains(body, "signup_http_request_duration_seconds"), "metrics body missing request histogram")
			})
		})
	})
}
