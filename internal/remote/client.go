// Package remote is the HTTP client the gateway uses to reach the remote API.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guttosm/offline-sync/internal/circuitbreaker"
	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/rs/zerolog/log"
)

// IdempotencyHeader carries the key that lets the remote API de-duplicate replays.
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 32 << 20

// Headers that only make sense for a single transport hop.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCircuitBreaker guards every outbound call with cb.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithReachability registers a callback fed with call outcomes: true after any
// response, false after a connection failure.
func WithReachability(fn func(online bool)) Option {
	return func(c *Client) { c.report = fn }
}

// WithAPIPrefix sets the path prefix used for replayed actions.
func WithAPIPrefix(prefix string) Option {
	return func(c *Client) { c.apiPrefix = prefix }
}

// WithHealthPath sets the path requested by Ping.
func WithHealthPath(path string) Option {
	return func(c *Client) { c.healthPath = path }
}

// Client talks to the remote API.
type Client struct {
	base       *url.URL
	apiPrefix  string
	healthPath string
	http       *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	report     func(online bool)
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote base url %q must be absolute", baseURL)
	}

	c := &Client{
		base:       base,
		apiPrefix:  "/api",
		healthPath: "/api/health",
		http:       &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the remote base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Resolve turns a path (with optional query) into an absolute remote URL.
// Absolute URLs are returned unchanged.
func (c *Client) Resolve(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() {
		return target
	}
	resolved := *c.base
	resolved.Path = c.base.Path + "/" + strings.TrimLeft(u.Path, "/")
	resolved.RawPath = ""
	resolved.RawQuery = u.RawQuery
	resolved.Fragment = ""
	return resolved.String()
}

// Fetch sends req to the remote API. Any response the remote sends back is
// returned without error whatever its status; failing to get a response at all
// yields a *NetworkError.
func (c *Client) Fetch(ctx context.Context, req *model.Request) (*model.Response, error) {
	return c.do(ctx, "fetch", req.Method, c.Resolve(req.URL), req.Header, req.Body)
}

// Replay sends a queued action. Non-2xx responses are returned together with a
// *RemoteRejection.
func (c *Client) Replay(ctx context.Context, action model.QueuedAction) (*model.Response, error) {
	method, path := c.replayTarget(action)

	header := cloneHeader(action.Header)
	if action.IdempotencyKey != "" {
		header.Set(IdempotencyHeader, action.IdempotencyKey)
	}
	if len(action.Payload) > 0 && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(ctx, "replay", method, c.Resolve(path), header, action.Payload)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, &RemoteRejection{Status: resp.Status, Body: resp.Body}
	}
	return resp, nil
}

// Ping checks that the remote API answers on its health path.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, "ping", http.MethodGet, c.Resolve(c.healthPath), nil, nil)
	if err != nil {
		return err
	}
	if resp.Status >= http.StatusInternalServerError {
		return &RemoteRejection{Status: resp.Status, Body: resp.Body}
	}
	return nil
}

func (c *Client) replayTarget(action model.QueuedAction) (string, string) {
	var method string
	switch action.Type {
	case model.ActionCreate:
		method = http.MethodPost
	case model.ActionUpdate:
		method = http.MethodPut
		if strings.EqualFold(action.Method, http.MethodPatch) {
			method = http.MethodPatch
		}
	case model.ActionDelete:
		method = http.MethodDelete
	default:
		method = strings.ToUpper(action.Method)
	}

	if action.Path != "" {
		return method, action.Path
	}
	path := c.apiPrefix + "/" + action.Kind
	if action.Type != model.ActionCreate && action.EntityID != "" {
		path += "/" + url.PathEscape(action.EntityID)
	}
	return method, path
}

func (c *Client) do(ctx context.Context, op, method, target string, header http.Header, body []byte) (*model.Response, error) {
	var out *model.Response
	call := func(ctx context.Context) error {
		resp, err := c.roundTrip(ctx, method, target, header, body)
		if err != nil {
			return err
		}
		out = resp
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}

	if err != nil {
		netErr := &NetworkError{Op: op, URL: target, Timeout: isTimeout(err), Err: err}
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			log.Debug().Str("url", target).Msg("Remote call short-circuited")
		} else {
			log.Warn().Err(err).Str("op", op).Str("url", target).Bool("timeout", netErr.Timeout).Msg("Remote call failed")
		}
		if !netErr.Timeout && !errors.Is(err, context.Canceled) {
			c.reachable(false)
		}
		return nil, netErr
	}

	c.reachable(true)
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, method, target string, header http.Header, body []byte) (*model.Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header = cloneHeader(header)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &model.Response{
		Status: resp.StatusCode,
		Header: cloneHeader(resp.Header),
		Body:   data,
	}, nil
}

func (c *Client) reachable(online bool) {
	if c.report != nil {
		c.report(online)
	}
}

// cloneHeader copies h without hop-by-hop headers.
func cloneHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, name := range hopHeaders {
		out.Del(name)
	}
	return out
}
