// Package relay fetches a single URL on behalf of a caller, optionally
// through a SOCKS5 proxy, and classifies the outcome.
package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	xproxy "golang.org/x/net/proxy"
)

// Request is one fetch on behalf of a caller. Proxy, when set, must be a
// socks5 URI, e.g. "socks5://127.0.0.1:9050". A zero TimeoutSeconds falls
// back to the configured default.
type Request struct {
	URL            string `json:"url"`
	Proxy          string `json:"proxy,omitempty"`
	TimeoutSeconds uint   `json:"timeout_seconds,omitempty"`
}

// Outcome classifies how a fetch concluded, independent of the HTTP status:
// a relayed upstream 500 is an upstream error, not a relay fault.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeInvalidProxy  Outcome = "invalid_proxy"
	OutcomeRelayError    Outcome = "relay_error"
	OutcomeUpstreamError Outcome = "upstream_error"
)

// Result is the terminal outcome of one fetch: the HTTP status the caller
// should receive, plus either Content or Err, never both.
type Result struct {
	Status  int
	Outcome Outcome
	Content string
	Err     string
}

func (r Result) OK() bool { return r.Err == "" }

type Relay struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Relay {
	return &Relay{cfg: cfg, log: log}
}

// EffectiveProxy resolves the proxy address for a request: the
// deployment-wide override wins over the per-request field.
func (r *Relay) EffectiveProxy(req Request) string {
	if r.cfg.ProxyOverride != "" {
		return r.cfg.ProxyOverride
	}
	return req.Proxy
}

// EffectiveTimeout resolves the timeout for a request, falling back to the
// configured default when the request does not carry one.
func (r *Relay) EffectiveTimeout(req Request) time.Duration {
	seconds := req.TimeoutSeconds
	if seconds == 0 {
		seconds = r.cfg.TimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// Fetch performs a single GET to req.URL and classifies the outcome. One
// attempt only: every failure is terminal for the request, and a non-2xx
// upstream status is passed through to the caller verbatim.
func (r *Relay) Fetch(ctx context.Context, req Request) Result {
	proxyAddr := r.EffectiveProxy(req)
	timeout := r.EffectiveTimeout(req)

	log := r.log.With().Str("url", req.URL).Logger()
	log.Info().Dur("timeout", timeout).Msg("fetching URL")

	client, fail := r.newClient(proxyAddr, timeout, log)
	if fail != nil {
		return *fail
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		log.Error().Err(err).Msg("could not build outbound request")
		return Result{
			Status:  http.StatusInternalServerError,
			Outcome: OutcomeRelayError,
			Err:     fmt.Sprintf("Failed to make HTTP request: %v", err),
		}
	}
	if r.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", r.cfg.UserAgent)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		log.Error().Err(err).Msg("fetch failed")
		return Result{
			Status:  http.StatusInternalServerError,
			Outcome: OutcomeRelayError,
			Err:     fmt.Sprintf("Failed to make HTTP request: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := http.StatusText(resp.StatusCode)
		if reason == "" {
			reason = "Unknown Status"
		}
		log.Warn().Int("status", resp.StatusCode).Msg("upstream returned non-2xx status")
		return Result{
			Status:  resp.StatusCode,
			Outcome: OutcomeUpstreamError,
			Err:     fmt.Sprintf("HTTP request failed with status: %d %s", resp.StatusCode, reason),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("failed to read upstream body")
		return Result{
			Status:  http.StatusInternalServerError,
			Outcome: OutcomeRelayError,
			Err:     fmt.Sprintf("Failed to read response body: %v", err),
		}
	}

	log.Info().Int("bytes", len(body)).Msg("fetch succeeded")
	return Result{Status: http.StatusOK, Outcome: OutcomeSuccess, Content: string(body)}
}

// newClient builds the one-shot client for this fetch. The returned Result
// is non-nil when the proxy address is unusable or the dialer cannot be
// built; requests never share a client.
func (r *Relay) newClient(proxyAddr string, timeout time.Duration, log zerolog.Logger) (*http.Client, *Result) {
	client := &http.Client{Timeout: timeout}
	if proxyAddr == "" {
		return client, nil
	}

	proxyURL, err := parseProxyURL(proxyAddr)
	if err != nil {
		log.Error().Err(err).Str("proxy", proxyAddr).Msg("rejecting invalid proxy URL")
		return nil, &Result{
			Status:  http.StatusBadRequest,
			Outcome: OutcomeInvalidProxy,
			Err:     fmt.Sprintf("Invalid proxy URL: %s", proxyAddr),
		}
	}

	dialer, err := xproxy.FromURL(proxyURL, xproxy.Direct)
	if err != nil {
		log.Error().Err(err).Str("proxy", proxyAddr).Msg("could not build proxy dialer")
		return nil, &Result{
			Status:  http.StatusInternalServerError,
			Outcome: OutcomeRelayError,
			Err:     fmt.Sprintf("Failed to initialize HTTP client: %v", err),
		}
	}

	log.Info().Str("proxy", proxyAddr).Msg("using SOCKS5 proxy")
	client.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}
	return client, nil
}

// parseProxyURL validates that addr is a usable socks5 URI.
func parseProxyURL(addr string) (*url.URL, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("unsupported proxy scheme '%s'", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy URL '%s' has no host", addr)
	}
	return u, nil
}
