// Package apiclient is the JSON-over-HTTP client for the admin backend.
//
// Every request carries a bearer token from a TokenSource and a fresh
// X-Request-ID. Responses are decoded with json.Number so ids and money
// survive untouched; non-2xx responses become *APIError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dashboard/internal/logging"
	"dashboard/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 32 << 20

// TokenSource supplies the bearer token for each request. An empty token
// sends no Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns itself.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Options configures a Client.
type Options struct {
	BaseURL string
	Tokens  TokenSource

	// Timeout and MaxConnsPerHost size the default http.Client. They are
	// ignored when HTTPClient is set.
	Timeout         time.Duration
	MaxConnsPerHost int
	HTTPClient      *http.Client

	// Job labels HTTP metrics; defaults to "dashboard".
	Job    string
	Logger *zap.Logger

	newRequestID func() string
}

// Client talks to one backend base URL.
type Client struct {
	base   *url.URL
	tokens TokenSource
	http   *http.Client
	job    string
	log    *zap.Logger
	reqID  func() string
}

// New validates opts and builds a Client.
//
// Errors:
//   - BaseURL is empty, unparseable, or not absolute.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("apiclient: base url %q must be absolute", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(opts.Timeout, opts.MaxConnsPerHost)
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = StaticToken("")
	}
	job := opts.Job
	if job == "" {
		job = "dashboard"
	}
	reqID := opts.newRequestID
	if reqID == nil {
		reqID = func() string { return uuid.NewString() }
	}

	return &Client{
		base:   u,
		tokens: tokens,
		http:   hc,
		job:    job,
		log:    logging.OrNop(opts.Logger),
		reqID:  reqID,
	}, nil
}

func newHTTPClient(timeout time.Duration, maxConnsPerHost int) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		MaxConnsPerHost:     maxConnsPerHost,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Get issues a GET with query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (any, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (any, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Patch sends body as JSON.
func (c *Client) Patch(ctx context.Context, path string, body any) (any, error) {
	return c.Do(ctx, http.MethodPatch, path, nil, body)
}

// Put sends body as JSON.
func (c *Client) Put(ctx context.Context, path string, body any) (any, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) (any, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do performs one request and decodes the JSON response.
//
// path is resolved against the base URL unless it is already absolute.
// A nil body sends no payload.
//
// Edge cases:
//   - An empty 2xx body (e.g. 204) returns (nil, nil).
//
// Errors:
//   - *APIError for any status outside 2xx.
//   - Wrapped network, token, encoding and decoding errors.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (any, error) {
	target := c.resolve(path, query)

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("apiclient: encode %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("apiclient: new request: %w", err)
	}
	reqID := c.reqID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("apiclient: token: %w", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordHTTP(c.job, 0, err, time.Since(start), -1, -1)
		c.log.Debug("request failed", zap.String("method", method), zap.String("url", target), zap.String("request_id", reqID), zap.Error(err))
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	reqDur := time.Since(start)
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	respDur := time.Since(start)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	var outErr error
	switch {
	case !ok:
		outErr = &APIError{
			Status:    resp.StatusCode,
			Message:   messageFrom(raw, resp.Header.Get("Content-Type"), resp.StatusCode),
			Body:      raw,
			RequestID: reqID,
		}
	case readErr != nil:
		outErr = fmt.Errorf("apiclient: read %s %s: %w", method, path, readErr)
	}
	metrics.RecordHTTP(c.job, resp.StatusCode, outErr, reqDur, respDur, int64(len(raw)))

	c.log.Debug("request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID),
		zap.Duration("duration", respDur),
	)

	if outErr != nil {
		return nil, outErr
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	v, err := decodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
	}
	return v, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	var u url.URL
	if p, err := url.Parse(path); err == nil && p.IsAbs() {
		u = *p
	} else {
		u = *c.base
		u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
		u.RawPath = ""
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// decodeJSON decodes exactly one JSON value with numbers kept as json.Number.
func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}
