package client

import (
	"context"
	"fmt"
	"time"

	"github.com/telefwd/telefwd/internal/api"
	"github.com/telefwd/telefwd/internal/cache"
	"github.com/telefwd/telefwd/internal/domain"
)

// User returns the account record, fetched once per session and invalidated
// on login, logout, and subscription changes.
func (c *Client) User(ctx context.Context) (domain.User, error) {
	return fetchAs(ctx, c, KeyUser, c.api.Me)
}

// Channels lists the user's attached channels.
func (c *Client) Channels(ctx context.Context) ([]domain.Channel, error) {
	return fetchAs(ctx, c, KeyChannels, c.api.Channels)
}

// AvailableChannels lists channels reachable from the user's Telegram
// account but not yet attached.
func (c *Client) AvailableChannels(ctx context.Context) (api.AvailableChannels, error) {
	return fetchAs(ctx, c, KeyAvailableChannels, c.api.AvailableChannels)
}

// Rules lists the user's forwarding rules.
func (c *Client) Rules(ctx context.Context) ([]domain.ForwardingRule, error) {
	return fetchAs(ctx, c, KeyRules, c.api.Rules)
}

// Stats returns the dashboard summary.
func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	return fetchAs(ctx, c, KeyStats, c.api.Stats)
}

// ForwardingLogs returns the audit trail for the given window, cached per
// parameter combination under the stats prefix.
func (c *Client) ForwardingLogs(ctx context.Context, days, limit int) ([]domain.ForwardingLog, error) {
	key := fmt.Sprintf("%s/logs/%d/%d", KeyStats, days, limit)
	return fetchAs(ctx, c, key, func(ctx context.Context) ([]domain.ForwardingLog, error) {
		return c.api.ForwardingLogs(ctx, days, limit)
	})
}

// Analytics returns the per-range analytics view, cached per range.
func (c *Client) Analytics(ctx context.Context, days int) (domain.AnalyticsSnapshot, error) {
	key := fmt.Sprintf("%s/%d", KeyAnalytics, days)
	return fetchAs(ctx, c, key, func(ctx context.Context) (domain.AnalyticsSnapshot, error) {
		return c.api.Analytics(ctx, days)
	})
}

// Performance returns the trailing-24h report.
func (c *Client) Performance(ctx context.Context) (domain.PerformanceReport, error) {
	return fetchAs(ctx, c, KeyPerformance, c.api.Performance)
}

// BotStatus returns the forwarding bot's live state.
func (c *Client) BotStatus(ctx context.Context) (domain.BotStatus, error) {
	return fetchAs(ctx, c, KeyBotStatus, c.api.BotStatus)
}

// Subscription returns the latest billing record.
func (c *Client) Subscription(ctx context.Context) (domain.SubscriptionStatus, error) {
	return fetchAs(ctx, c, KeySubscription, c.api.SubscriptionStatus)
}

// Plans lists the purchasable tiers.
func (c *Client) Plans(ctx context.Context) ([]domain.Plan, error) {
	return fetchAs(ctx, c, KeyPlans, c.api.SubscriptionPlans)
}

// CanCreateRule evaluates the quota policy against the cached user and rule
// count, for UI affordances like disabling a create button.
func (c *Client) CanCreateRule(ctx context.Context) (bool, error) {
	user, err := c.User(ctx)
	if err != nil {
		return false, err
	}
	rules, err := c.Rules(ctx)
	if err != nil {
		return false, err
	}
	return domain.CanCreateRule(user.SubscriptionActive, len(rules)), nil
}

// WatchBotStatus polls the bot status on the given interval until the
// returned handle is stopped. Observers of the same key share one poller.
func (c *Client) WatchBotStatus(ctx context.Context, interval time.Duration) *cache.PollHandle {
	return c.cache.Poll(ctx, KeyBotStatus, interval, func(ctx context.Context) (any, error) {
		return c.api.BotStatus(ctx)
	})
}

// WatchPerformance polls the performance report on the given interval until
// the returned handle is stopped.
func (c *Client) WatchPerformance(ctx context.Context, interval time.Duration) *cache.PollHandle {
	return c.cache.Poll(ctx, KeyPerformance, interval, func(ctx context.Context) (any, error) {
		return c.api.Performance(ctx)
	})
}
