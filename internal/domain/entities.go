package domain

import "time"

// ChannelType distinguishes the kinds of Telegram channels a user can attach.
type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
	ChannelGroup   ChannelType = "group"
)

// ForwardStatus is the outcome recorded for one forwarded message.
type ForwardStatus string

const (
	ForwardSuccess  ForwardStatus = "SUCCESS"
	ForwardFailed   ForwardStatus = "FAILED"
	ForwardFiltered ForwardStatus = "FILTERED"
)

// User mirrors the account record owned by the forwarding service. It is
// fetched once per session and invalidated on login, logout, and
// subscription changes.
type User struct {
	ID                 int       `json:"id"`
	Email              string    `json:"email"`
	Username           string    `json:"username"`
	SubscriptionActive bool      `json:"subscription_active"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// Channel is a Telegram channel the user has attached to their account.
// The numeric ID is the service's row id; ChannelID is the external
// Telegram identifier.
type Channel struct {
	ID          int         `json:"id"`
	ChannelID   string      `json:"channel_id"`
	ChannelName string      `json:"channel_name"`
	ChannelType ChannelType `json:"channel_type"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ChannelDraft carries the fields needed to attach a new channel.
type ChannelDraft struct {
	ChannelID   string      `json:"channel_id"`
	ChannelName string      `json:"channel_name"`
	ChannelType ChannelType `json:"channel_type"`
}

// ForwardingRule is owned by the remote system and mirrored read-only in
// the cache. Keyword lists are normalized before they ever leave the client.
type ForwardingRule struct {
	ID                int        `json:"id"`
	SourceChannelID   string     `json:"source_channel_id"`
	TargetChannelID   string     `json:"target_channel_id"`
	FilterKeywords    []string   `json:"filter_keywords"`
	ExcludeKeywords   []string   `json:"exclude_keywords"`
	IsActive          bool       `json:"is_active"`
	MessagesForwarded int        `json:"messages_forwarded"`
	LastForwardedAt   *time.Time `json:"last_forwarded_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at"`
}

// RuleDraft is the client-side shape for creating or updating a rule.
type RuleDraft struct {
	SourceChannelID string   `json:"source_channel_id"`
	TargetChannelID string   `json:"target_channel_id"`
	FilterKeywords  []string `json:"filter_keywords"`
	ExcludeKeywords []string `json:"exclude_keywords"`
	IsActive        bool     `json:"is_active"`
}

// ForwardingLog is one line of the per-message audit trail.
type ForwardingLog struct {
	ID              int           `json:"id"`
	RuleID          int           `json:"rule_id"`
	SourceMessageID int           `json:"source_message_id"`
	TargetMessageID *int          `json:"target_message_id"`
	Status          ForwardStatus `json:"status"`
	ErrorMessage    *string       `json:"error_message"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Stats is the dashboard headline summary.
type Stats struct {
	TotalChannels          int  `json:"total_channels"`
	TotalRules             int  `json:"total_rules"`
	TotalMessagesForwarded int  `json:"total_messages_forwarded"`
	ActiveRules            int  `json:"active_rules"`
	BotRunning             bool `json:"bot_running"`
	SubscriptionActive     bool `json:"subscription_active"`
}

// DailyStat is one day of the analytics time series.
type DailyStat struct {
	Date          string `json:"date"`
	TotalMessages int    `json:"total_messages"`
	Successful    int    `json:"successful"`
	Failed        int    `json:"failed"`
	Filtered      int    `json:"filtered"`
}

// TopRule ranks a rule by forwarded volume within the analytics window.
type TopRule struct {
	RuleID            int    `json:"rule_id"`
	SourceChannel     string `json:"source_channel"`
	TargetChannel     string `json:"target_channel"`
	MessagesForwarded int    `json:"messages_forwarded"`
}

// CommonError aggregates failure messages within the analytics window.
type CommonError struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

// AnalyticsSnapshot is the detailed per-range analytics view.
type AnalyticsSnapshot struct {
	DailyStats   []DailyStat   `json:"daily_stats"`
	TopRules     []TopRule     `json:"top_rules"`
	CommonErrors []CommonError `json:"common_errors"`
}

// PerformanceReport covers the trailing 24 hours of forwarding activity.
type PerformanceReport struct {
	SuccessRate           float64   `json:"success_rate"`
	TotalMessages24h      int       `json:"total_messages_24h"`
	SuccessfulMessages24h int       `json:"successful_messages_24h"`
	FailedMessages24h     int       `json:"failed_messages_24h"`
	AvgProcessingTime     float64   `json:"avg_processing_time"`
	BotUptimeHours        float64   `json:"bot_uptime_hours"`
	LastUpdated           time.Time `json:"last_updated"`
}

// SubscriptionStatus is the latest billing record for the account.
type SubscriptionStatus struct {
	ID                   int        `json:"id"`
	PaypalSubscriptionID string     `json:"paypal_subscription_id"`
	Status               string     `json:"status"`
	Amount               float64    `json:"amount"`
	Currency             string     `json:"currency"`
	NextBillingTime      *time.Time `json:"next_billing_time"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Plan describes one purchasable subscription tier.
type Plan struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Interval    string   `json:"interval"`
	Features    []string `json:"features"`
}

// BotStatus reflects the forwarding bot attached to the session.
type BotStatus struct {
	Running       bool       `json:"running"`
	Authenticated bool       `json:"authenticated"`
	LastActivity  *time.Time `json:"last_activity"`
	ActiveRules   int        `json:"active_rules"`
}
