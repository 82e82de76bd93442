// Package client assembles the session manager, resource cache, transport,
// and mutation pipeline into the single process-wide object UI collaborators
// talk to. It owns the resource key space, the fixed invalidation mapping
// for every write, and the local policy checks that stop doomed requests
// before they reach the network.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/telefwd/telefwd/internal/api"
	"github.com/telefwd/telefwd/internal/cache"
	"github.com/telefwd/telefwd/internal/config"
	"github.com/telefwd/telefwd/internal/metrics"
	"github.com/telefwd/telefwd/internal/pipeline"
	"github.com/telefwd/telefwd/internal/session"
)

// Resource keys. Parameterized resources nest under their class prefix so
// pattern invalidation covers every variant at once.
const (
	KeyUser              = "user"
	KeyChannels          = "channels"
	KeyAvailableChannels = "channels/available"
	KeyRules             = "forwardingRules"
	KeyStats             = "stats"
	KeyBotStatus         = "botStatus"
	KeySubscription      = "subscription"
	KeyPlans             = "subscription/plans"
	KeyPerformance       = "performance"
	KeyAnalytics         = "analytics"
)

// Client is the process-wide context object for one authenticated session.
// Construct it once on startup; Logout tears the session down and leaves
// the client reusable for the next login.
type Client struct {
	logger  *slog.Logger
	metrics *metrics.Recorder
	session *session.Manager
	api     *api.Client
	cache   *cache.Store
	pipe    *pipeline.Pipeline
}

// Options override collaborators, mostly for tests.
type Options struct {
	// TokenStore replaces the file-backed credential store.
	TokenStore session.Store
	// HTTPClient replaces the transport's underlying client.
	HTTPClient *http.Client
	// Metrics replaces the recorder. Nil builds a private one.
	Metrics *metrics.Recorder
	// Clock overrides time.Now for cache freshness decisions.
	Clock func() time.Time
}

// New wires the core. The returned client restores any persisted credential
// but performs no network calls.
func New(cfg config.Config, logger *slog.Logger, opts Options) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.NewRecorder(nil)
	}

	store := opts.TokenStore
	if store == nil {
		store = session.NewFileStore(cfg.Session.TokenFile)
	}
	sess := session.NewManager(store, logger)
	if err := sess.Load(); err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.API.RatePerSecond), cfg.API.Burst)
	transport := api.New(cfg.API.BaseURL, sess, logger, api.Options{
		HTTPClient:      opts.HTTPClient,
		Timeout:         cfg.API.Timeout(),
		MaxReadAttempts: uint(cfg.API.ReadRetries),
		Limiter:         limiter,
	})

	resources := cache.New(cache.Options{
		StaleAfter:     cfg.Cache.StaleAfter(),
		StaleOverrides: cfg.Cache.Overrides(),
		Limiter:        limiter,
		Logger:         logger,
		Metrics:        rec,
		Clock:          opts.Clock,
	})

	// Every cached resource is scoped to the credential, so teardown
	// flushes the whole cache before anything can observe the
	// unauthenticated state.
	sess.OnTeardown(func() {
		resources.FlushAll()
		rec.SessionTeardown()
	})

	return &Client{
		logger:  logger,
		metrics: rec,
		session: sess,
		api:     transport,
		cache:   resources,
		pipe:    pipeline.New(resources, logger, rec),
	}, nil
}

// Session exposes the session manager for credential watching and logout
// listeners.
func (c *Client) Session() *session.Manager {
	return c.session
}

// Metrics exposes the recorder so callers can serve its handler.
func (c *Client) Metrics() *metrics.Recorder {
	return c.metrics
}

// Authenticated reports whether a credential is present.
func (c *Client) Authenticated() bool {
	_, ok := c.session.Credential()
	return ok
}

// Peek returns the cache entry for a key without fetching, for status-aware
// rendering.
func (c *Client) Peek(key string) cache.Entry {
	return c.cache.Peek(key)
}

// fetchAs routes a typed read through the cache, sharing in-flight fetches
// per key. When a stale value exists alongside a failed refresh, both the
// value and the error are returned.
func fetchAs[T any](ctx context.Context, c *Client, key string, fetch func(context.Context) (T, error)) (T, error) {
	entry, err := c.cache.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if entry.HasValue {
		if value, ok := entry.Value.(T); ok {
			return value, err
		}
	}
	var zero T
	return zero, err
}
