// Package upstream is the HTTP client used for every third-party API: it
// bounds each call with a timeout, trips a circuit breaker on repeated server
// failures and retries idempotent calls on transient errors.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/metrics"
	"go.uber.org/zap"
)

const (
	DefaultTimeout     = 20 * time.Second
	defaultBackoffBase = 250 * time.Millisecond
	maxBodyBytes       = 4 << 20
	bodyExcerptBytes   = 512
)

// Request describes one call. JSON, when set, is marshalled as the body.
type Request struct {
	Method string
	URL    string
	Header http.Header
	JSON   interface{}
	// Idempotent calls may be retried. Posting a tweet must never set it.
	Idempotent bool
}

// Response is a fully read upstream response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

type Client struct {
	name        string
	http        *http.Client
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	breaker     *gobreaker.CircuitBreaker
	logger      *zap.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoffBase sets the first retry delay; later delays double.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the upstream called name. The name appears in
// metrics labels and in client-visible error messages.
func New(name string, opts ...Option) *Client {
	c := &Client{
		name:        name,
		http:        &http.Client{},
		timeout:     DefaultTimeout,
		backoffBase: defaultBackoffBase,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("upstream circuit breaker state changed",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string { return c.name }

// StatusError carries a non-2xx response body for callers that need to
// inspect it. It is wrapped inside the *apperr.Error returned by Do.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, excerpt(e.Body))
}

// serverError marks a 5xx response so the breaker counts it as a failure.
type serverError struct{ resp *Response }

func (e *serverError) Error() string { return "server status " + strconv.Itoa(e.resp.Status) }

// Do sends req and returns the response when the status is 2xx or 3xx. Any
// other outcome is an *apperr.Error of kind Upstream or Timeout, or the
// context error when the caller cancelled.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(c.backoffBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		resp, err = c.attempt(ctx, req)
		if err != nil && req.Idempotent && retryable(err) {
			c.logger.Debug("retrying upstream call", zap.String("upstream", c.name), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil && !apperr.Is(err, apperr.KindTimeout) {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return resp, nil
}

// JSON sends req and decodes a successful response body into out.
func (c *Client) JSON(ctx context.Context, req Request, out interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		c.logger.Warn("upstream returned malformed JSON",
			zap.String("upstream", c.name),
			zap.String("body", excerpt(resp.Body)),
			zap.Error(err),
		)
		return apperr.Upstream(http.StatusBadGateway, c.name+" returned an unexpected response", err)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.send(callCtx, req)
		if err != nil {
			return nil, err
		}
		if resp.Status >= http.StatusInternalServerError {
			return resp, &serverError{resp: resp}
		}
		return resp, nil
	})
	metrics.UpstreamDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	var resp *Response
	if r, ok := out.(*Response); ok {
		resp = r
	}
	code := "error"
	if resp != nil {
		code = strconv.Itoa(resp.Status)
	}
	metrics.UpstreamRequests.WithLabelValues(c.name, code).Inc()

	var se *serverError
	switch {
	case err == nil:
	case errors.As(err, &se):
		return nil, c.statusError(req, se.resp)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, apperr.Upstream(http.StatusServiceUnavailable, c.name+" is temporarily unavailable", err)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		c.logger.Warn("upstream call timed out", zap.String("upstream", c.name), zap.Duration("timeout", c.timeout))
		return nil, apperr.Timeout(c.name+" request timed out", err)
	default:
		c.logger.Warn("upstream call failed", zap.String("upstream", c.name), zap.Error(err))
		return nil, apperr.Upstream(0, c.name+" request failed", err)
	}

	if resp.Status >= http.StatusBadRequest {
		return nil, c.statusError(req, resp)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.JSON != nil {
		payload, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.JSON != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

func (c *Client) statusError(req Request, resp *Response) error {
	c.logger.Warn("upstream returned error status",
		zap.String("upstream", c.name),
		zap.String("method", req.Method),
		zap.Int("status", resp.Status),
		zap.String("body", excerpt(resp.Body)),
	)
	return apperr.Upstream(resp.Status,
		fmt.Sprintf("%s request failed with status %d", c.name, resp.Status),
		&StatusError{Status: resp.Status, Body: resp.Body})
}

func retryable(err error) bool {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind != apperr.KindUpstream {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

func excerpt(b []byte) string {
	if len(b) > bodyExcerptBytes {
		return string(b[:bodyExcerptBytes]) + "..."
	}
	return string(b)
}
