package client

import (
	"context"

	"github.com/telefwd/telefwd/internal/api"
	"github.com/telefwd/telefwd/internal/domain"
	"github.com/telefwd/telefwd/internal/pipeline"
)

// Invalidation footprints are fixed per write class. Changing one here
// changes which reads refetch after the corresponding mutation resolves.
var (
	invalidatesChannels     = []string{KeyChannels, KeyStats}
	invalidatesRules        = []string{KeyRules, KeyStats}
	invalidatesSubscription = []string{KeySubscription, KeyUser}
	invalidatesBot          = []string{KeyBotStatus, KeyStats}
)

// AddChannel attaches a channel. Private channels are rejected locally for
// accounts without an active subscription; the request is never sent.
func (c *Client) AddChannel(ctx context.Context, draft domain.ChannelDraft) (domain.Channel, error) {
	if draft.ChannelType == domain.ChannelPrivate {
		user, err := c.User(ctx)
		if err != nil {
			return domain.Channel{}, err
		}
		if !domain.CanUsePrivateChannel(user.SubscriptionActive) {
			return domain.Channel{}, api.PolicyViolation("premium subscription required for private channels")
		}
	}
	return pipeline.Execute(ctx, c.pipe, pipeline.Operation[domain.Channel]{
		Name:        "channel.create",
		Invalidates: invalidatesChannels,
		Send: func(ctx context.Context) (domain.Channel, error) {
			return c.api.AddChannel(ctx, draft)
		},
	})
}

// RemoveChannel detaches a channel.
func (c *Client) RemoveChannel(ctx context.Context, id int) error {
	_, err := pipeline.Execute(ctx, c.pipe, pipeline.Operation[struct{}]{
		Name:        "channel.delete",
		Invalidates: invalidatesChannels,
		Send: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.DeleteChannel(ctx, id)
		},
	})
	return err
}

// CreateRule creates a forwarding rule. The quota policy is evaluated
// locally first: a free-tier account at its rule limit gets a policy
// violation and the request is never sent. Keyword lists are normalized
// before they leave the client.
func (c *Client) CreateRule(ctx context.Context, draft domain.RuleDraft) (domain.ForwardingRule, error) {
	user, err := c.User(ctx)
	if err != nil {
		return domain.ForwardingRule{}, err
	}
	rules, err := c.Rules(ctx)
	if err != nil {
		return domain.ForwardingRule{}, err
	}
	if !domain.CanCreateRule(user.SubscriptionActive, len(rules)) {
		return domain.ForwardingRule{}, api.PolicyViolation("free tier allows at most 3 forwarding rules")
	}
	draft.FilterKeywords = domain.NormalizeKeywords(draft.FilterKeywords)
	draft.ExcludeKeywords = domain.NormalizeKeywords(draft.ExcludeKeywords)
	return pipeline.Execute(ctx, c.pipe, pipeline.Operation[domain.ForwardingRule]{
		Name:        "rule.create",
		Invalidates: invalidatesRules,
		Send: func(ctx context.Context) (domain.ForwardingRule, error) {
			return c.api.CreateRule(ctx, draft)
		},
	})
}

// UpdateRule replaces a rule's definition.
func (c *Client) UpdateRule(ctx context.Context, id int, draft domain.RuleDraft) (domain.ForwardingRule, error) {
	draft.FilterKeywords = domain.NormalizeKeywords(draft.FilterKeywords)
	draft.ExcludeKeywords = domain.NormalizeKeywords(draft.ExcludeKeywords)
	return pipeline.Execute(ctx, c.pipe, pipeline.Operation[domain.ForwardingRule]{
		Name:        "rule.update",
		Invalidates: invalidatesRules,
		Send: func(ctx context.Context) (domain.ForwardingRule, error) {
			return c.api.UpdateRule(ctx, id, draft)
		},
	})
}

// DeleteRule removes a rule.
func (c *Client) DeleteRule(ctx context.Context, id int) error {
	_, err := pipeline.Execute(ctx, c.pipe, pipeline.Operation[struct{}]{
		Name:        "rule.delete",
		Invalidates: invalidatesRules,
		Send: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.DeleteRule(ctx, id)
		},
	})
	return err
}

// ToggleRule flips a rule's active flag. Toggles on the same rule are not
// coalesced; each triggers its own invalidation, and the cache reflects the
// last response observed.
func (c *Client) ToggleRule(ctx context.Context, id int) (domain.ForwardingRule, error) {
	return pipeline.Execute(ctx, c.pipe, pipeline.Operation[domain.ForwardingRule]{
		Name:        "rule.toggle",
		Invalidates: invalidatesRules,
		Send: func(ctx context.Context) (domain.ForwardingRule, error) {
			return c.api.ToggleRule(ctx, id)
		},
	})
}

// Subscribe starts a premium subscription; the returned payload may carry a
// payment-approval URL.
func (c *Client) Subscribe(ctx context.Context) (api.SubscriptionCreated, error) {
	return pipeline.Execute(ctx, c.pipe, pipeline.Operation[api.SubscriptionCreated]{
		Name:        "subscription.create",
		Invalidates: invalidatesSubscription,
		Send:        c.api.CreateSubscription,
	})
}

// CancelSubscription ends the premium subscription.
func (c *Client) CancelSubscription(ctx context.Context) error {
	_, err := pipeline.Execute(ctx, c.pipe, pipeline.Operation[struct{}]{
		Name:        "subscription.cancel",
		Invalidates: invalidatesSubscription,
		Send: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.CancelSubscription(ctx)
		},
	})
	return err
}

// StartBot starts the forwarding bot.
func (c *Client) StartBot(ctx context.Context) error {
	_, err := pipeline.Execute(ctx, c.pipe, pipeline.Operation[struct{}]{
		Name:        "bot.start",
		Invalidates: invalidatesBot,
		Send: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.StartBot(ctx)
		},
	})
	return err
}

// StopBot stops the forwarding bot.
func (c *Client) StopBot(ctx context.Context) error {
	_, err := pipeline.Execute(ctx, c.pipe, pipeline.Operation[struct{}]{
		Name:        "bot.stop",
		Invalidates: invalidatesBot,
		Send: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.StopBot(ctx)
		},
	})
	return err
}
