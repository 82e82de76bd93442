package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// CredentialSource decorates outgoing requests with the session credential
// and absorbs authorization failures. The session manager implements it.
type CredentialSource interface {
	Attach(req *http.Request)
	AuthorizationFailure()
}

// Client is the authenticated REST transport for the forwarding service.
// It normalizes every failure into *Error, injects the bearer credential,
// retries reads a bounded number of times, and never retries writes.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
	logger  *slog.Logger
	limiter *rate.Limiter

	maxReadAttempts uint
	backoffInitial  time.Duration
}

// Options tune the transport. Zero values fall back to the documented
// defaults.
type Options struct {
	// HTTPClient overrides the underlying client, mostly for tests.
	HTTPClient *http.Client
	// Timeout bounds each individual HTTP exchange.
	Timeout time.Duration
	// MaxReadAttempts caps total attempts per read, including the first.
	MaxReadAttempts uint
	// Limiter is the shared outbound budget. Nil disables throttling.
	Limiter *rate.Limiter
	// BackoffInitial is the first retry delay for reads.
	BackoffInitial time.Duration
}

// New builds a transport rooted at baseURL. The credential source is
// consulted before every call and notified on any 401.
func New(baseURL string, creds CredentialSource, logger *slog.Logger, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	attempts := opts.MaxReadAttempts
	if attempts == 0 {
		attempts = 3
	}
	initial := opts.BackoffInitial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		http:            httpClient,
		creds:           creds,
		logger:          logger,
		limiter:         opts.Limiter,
		maxReadAttempts: attempts,
		backoffInitial:  initial,
	}
}

// get performs a read with bounded exponential retry. Authorization and
// validation failures are permanent; only transport and server failures are
// reattempted.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffInitial

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		if err == nil {
			return struct{}{}, nil
		}
		if retryable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxReadAttempts))
	return err
}

// write performs a single network attempt. Writes are not assumed
// idempotent, so there is no retry path here.
func (c *Client) write(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindNetwork, Message: fmt.Sprintf("request budget: %v", err)}
		}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.creds != nil {
		c.creds.Attach(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed before a response arrived",
			slog.String("method", method), slog.String("path", path), slog.Any("error", err))
		return &Error{Kind: KindNetwork, Message: "no response received: " + err.Error()}
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	closeErr := resp.Body.Close()
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "response read: " + err.Error()}
	}
	if closeErr != nil {
		return &Error{Kind: KindNetwork, Message: "response close: " + closeErr.Error()}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if c.creds != nil {
			c.creds.AuthorizationFailure()
		}
		return &Error{Kind: KindAuthorization, Status: resp.StatusCode, Message: detailMessage(payload)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := KindServer
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = KindValidation
		}
		return &Error{Kind: kind, Status: resp.StatusCode, Message: detailMessage(payload)}
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "unexpected response shape: " + err.Error()}
		}
	}
	return nil
}

// detailMessage extracts the service's {detail} field from an error body,
// falling back to a generic message when the body has another shape.
func detailMessage(payload []byte) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return "request failed"
}
