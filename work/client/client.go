package client

import (
	"net/http"
	"time"

	"go.uber.org/ratelimit"

	"stream-renamer/work/config"
)

// HeaderSettingClient wraps http.Client to automatically set headers and pace
// outbound requests through a shared rate limiter.
type HeaderSettingClient struct {
	Client    *http.Client
	userAgent string
	limiter   ratelimit.Limiter
}

// NewHeaderSettingClient builds the client used for upstream stream-list fetches.
// Per-request deadlines come from the caller's context, so the client itself has
// no overall timeout.
func NewHeaderSettingClient(cfg *config.Config, limiter ratelimit.Limiter) *HeaderSettingClient {
	return newClient(cfg, limiter, nil)
}

// NewNoRedirectClient builds a client that stops at the first response, letting
// callers read the Location header of a redirect themselves.
func NewNoRedirectClient(cfg *config.Config, limiter ratelimit.Limiter) *HeaderSettingClient {
	return newClient(cfg, limiter, func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
}

func newClient(cfg *config.Config, limiter ratelimit.Limiter, checkRedirect func(*http.Request, []*http.Request) error) *HeaderSettingClient {
	if limiter == nil {
		limiter = ratelimit.NewUnlimited()
	}

	client := &http.Client{
		Timeout:       0,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			DisableKeepAlives:     false,
			ResponseHeaderTimeout: 15 * time.Second,
		},
	}

	return &HeaderSettingClient{
		Client:    client,
		userAgent: cfg.UserAgent,
		limiter:   limiter,
	}
}

// Do waits for a rate-limit slot, sets the default headers and sends the request.
// The wait itself cannot be interrupted, so a request whose context ended while
// waiting is dropped instead of sent.
func (hsc *HeaderSettingClient) Do(req *http.Request) (*http.Response, error) {
	hsc.limiter.Take()
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	hsc.setHeaders(req)
	return hsc.Client.Do(req)
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" && hsc.userAgent != "" {
		req.Header.Set("User-Agent", hsc.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, */*")
	}
}
