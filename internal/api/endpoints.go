package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/telefwd/telefwd/internal/domain"
)

// AuthResponse is the login/register payload: the user record plus the
// bearer token for subsequent calls.
type AuthResponse struct {
	domain.User
	AccessToken string `json:"access_token"`
}

// RegisterRequest carries the fields accepted by POST /auth/register.
type RegisterRequest struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	TelegramUserID string `json:"telegram_user_id,omitempty"`
}

// AvailableChannels is the discovery payload listing channels the user's
// Telegram account can reach but has not attached yet.
type AvailableChannels struct {
	Channels []domain.Channel `json:"channels"`
	Message  string           `json:"message"`
}

// SubscriptionCreated is returned by POST /subscription/create; ApprovalURL
// points at the payment provider's checkout when approval is pending.
type SubscriptionCreated struct {
	ApprovalURL string `json:"approval_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

type planList struct {
	Plans []domain.Plan `json:"plans"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (c *Client) Login(ctx context.Context, email string) (AuthResponse, error) {
	var out AuthResponse
	err := c.write(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	var out AuthResponse
	err := c.write(ctx, http.MethodPost, "/auth/register", req, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var out domain.User
	err := c.get(ctx, "/auth/me", nil, &out)
	return out, err
}

func (c *Client) Channels(ctx context.Context) ([]domain.Channel, error) {
	var out []domain.Channel
	err := c.get(ctx, "/channels/", nil, &out)
	return out, err
}

func (c *Client) AddChannel(ctx context.Context, draft domain.ChannelDraft) (domain.Channel, error) {
	var out domain.Channel
	err := c.write(ctx, http.MethodPost, "/channels/", draft, &out)
	return out, err
}

func (c *Client) DeleteChannel(ctx context.Context, id int) error {
	var out messageResponse
	return c.write(ctx, http.MethodDelete, fmt.Sprintf("/channels/%d", id), nil, &out)
}

func (c *Client) AvailableChannels(ctx context.Context) (AvailableChannels, error) {
	var out AvailableChannels
	err := c.get(ctx, "/channels/available", nil, &out)
	return out, err
}

func (c *Client) Rules(ctx context.Context) ([]domain.ForwardingRule, error) {
	var out []domain.ForwardingRule
	err := c.get(ctx, "/forwarding-rules/", nil, &out)
	return out, err
}

func (c *Client) CreateRule(ctx context.Context, draft domain.RuleDraft) (domain.ForwardingRule, error) {
	var out domain.ForwardingRule
	err := c.write(ctx, http.MethodPost, "/forwarding-rules/", draft, &out)
	return out, err
}

func (c *Client) UpdateRule(ctx context.Context, id int, draft domain.RuleDraft) (domain.ForwardingRule, error) {
	var out domain.ForwardingRule
	err := c.write(ctx, http.MethodPut, fmt.Sprintf("/forwarding-rules/%d", id), draft, &out)
	return out, err
}

func (c *Client) DeleteRule(ctx context.Context, id int) error {
	var out messageResponse
	return c.write(ctx, http.MethodDelete, fmt.Sprintf("/forwarding-rules/%d", id), nil, &out)
}

func (c *Client) ToggleRule(ctx context.Context, id int) (domain.ForwardingRule, error) {
	var out domain.ForwardingRule
	err := c.write(ctx, http.MethodPatch, fmt.Sprintf("/forwarding-rules/%d/toggle", id), nil, &out)
	return out, err
}

func (c *Client) CreateSubscription(ctx context.Context) (SubscriptionCreated, error) {
	var out SubscriptionCreated
	err := c.write(ctx, http.MethodPost, "/subscription/create", nil, &out)
	return out, err
}

func (c *Client) SubscriptionStatus(ctx context.Context) (domain.SubscriptionStatus, error) {
	var out domain.SubscriptionStatus
	err := c.get(ctx, "/subscription/status", nil, &out)
	return out, err
}

func (c *Client) CancelSubscription(ctx context.Context) error {
	var out messageResponse
	return c.write(ctx, http.MethodPost, "/subscription/cancel", nil, &out)
}

func (c *Client) SubscriptionPlans(ctx context.Context) ([]domain.Plan, error) {
	var out planList
	err := c.get(ctx, "/subscription/plans", nil, &out)
	return out.Plans, err
}

func (c *Client) StartBot(ctx context.Context) error {
	var out messageResponse
	return c.write(ctx, http.MethodPost, "/telegram/start-bot", nil, &out)
}

func (c *Client) StopBot(ctx context.Context) error {
	var out messageResponse
	return c.write(ctx, http.MethodPost, "/telegram/stop-bot", nil, &out)
}

func (c *Client) BotStatus(ctx context.Context) (domain.BotStatus, error) {
	var out domain.BotStatus
	err := c.get(ctx, "/telegram/bot-status", nil, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	var out domain.Stats
	err := c.get(ctx, "/stats/", nil, &out)
	return out, err
}

func (c *Client) ForwardingLogs(ctx context.Context, days, limit int) ([]domain.ForwardingLog, error) {
	query := url.Values{}
	if days > 0 {
		query.Set("days", strconv.Itoa(days))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []domain.ForwardingLog
	err := c.get(ctx, "/stats/logs", query, &out)
	return out, err
}

func (c *Client) Analytics(ctx context.Context, days int) (domain.AnalyticsSnapshot, error) {
	query := url.Values{}
	if days > 0 {
		query.Set("days", strconv.Itoa(days))
	}
	var out domain.AnalyticsSnapshot
	err := c.get(ctx, "/stats/analytics", query, &out)
	return out, err
}

func (c *Client) Performance(ctx context.Context) (domain.PerformanceReport, error) {
	var out domain.PerformanceReport
	err := c.get(ctx, "/stats/performance", nil, &out)
	return out, err
}
