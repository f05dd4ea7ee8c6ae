package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchrelay/pkg/metrics"
	"fetchrelay/pkg/relay"
)

func newTestApp(cfg relay.Config) *fiber.App {
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = relay.DefaultTimeoutSeconds
	}
	app := fiber.New()
	app.Post("/scrape", Scrape(relay.New(cfg, zerolog.Nop()), zerolog.Nop()))
	return app
}

func postScrape(t *testing.T, app *fiber.App, body string) (*http.Response, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/scrape", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var envelope map[string]string
	require.NoError(t, json.Unmarshal(raw, &envelope))
	return resp, envelope
}

func TestScrapeSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer upstream.Close()

	resp, envelope := postScrape(t, newTestApp(relay.Config{}), `{"url":"`+upstream.URL+`"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", envelope["content"])
	assert.NotContains(t, envelope, "error")
}

func TestScrapeEmptyBodySuccess(t *testing.T) {
	// A 2xx upstream with an empty body is still a success; the envelope
	// must carry "content":"" rather than dropping the field.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	req := httptest.NewRequest(http.MethodPost, "/scrape", strings.NewReader(`{"url":"`+upstream.URL+`"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := newTestApp(relay.Config{}).Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"content":""`)
	assert.NotContains(t, string(raw), `"error"`)
}

func TestScrapeInvalidProxy(t *testing.T) {
	resp, envelope := postScrape(t, newTestApp(relay.Config{}),
		`{"url":"http://example.com","proxy":"not-a-proxy"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid proxy URL: not-a-proxy", envelope["error"])
	assert.NotContains(t, envelope, "content")
}

func TestScrapeOverridePrecedence(t *testing.T) {
	// The configured override is invalid; a request carrying a valid proxy
	// must still fail on the override.
	app := newTestApp(relay.Config{ProxyOverride: "bogus://proxy:1"})

	resp, envelope := postScrape(t, app,
		`{"url":"http://example.com","proxy":"socks5://127.0.0.1:9050"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid proxy URL: bogus://proxy:1", envelope["error"])
}

func TestScrapeUpstreamStatusPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	resp, envelope := postScrape(t, newTestApp(relay.Config{}), `{"url":"`+upstream.URL+`"}`)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "HTTP request failed with status: 503 Service Unavailable", envelope["error"])
	assert.NotContains(t, envelope, "content")
}

func TestScrapeCountsRelayedUpstreamErrorsAsUpstream(t *testing.T) {
	// An upstream 500 is the upstream's failure: it must land in the
	// upstream_error bucket, never in relay_error.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	upstreamBefore := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(string(relay.OutcomeUpstreamError)))
	relayBefore := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(string(relay.OutcomeRelayError)))

	resp, _ := postScrape(t, newTestApp(relay.Config{}), `{"url":"`+upstream.URL+`"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	assert.Equal(t, upstreamBefore+1,
		testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(string(relay.OutcomeUpstreamError))))
	assert.Equal(t, relayBefore,
		testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(string(relay.OutcomeRelayError))))
}

func TestScrapeTransportFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := upstream.URL
	upstream.Close()

	resp, envelope := postScrape(t, newTestApp(relay.Config{}), `{"url":"`+deadURL+`"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, envelope["error"], "Failed to make HTTP request")
}

func TestScrapeMalformedBody(t *testing.T) {
	resp, envelope := postScrape(t, newTestApp(relay.Config{}), `{"url": nope`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, envelope["error"], "Invalid request body")
}

func TestScrapeMissingURL(t *testing.T) {
	resp, envelope := postScrape(t, newTestApp(relay.Config{}), `{"proxy":"socks5://127.0.0.1:9050"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing required field: url", envelope["error"])
}
