package stripe

import (
	"fmt"
	"time"
)

const (
	// DefaultEventTTL is how long a delivered webhook event id is remembered.
	DefaultEventTTL = 24 * time.Hour
	// DefaultEventCacheSize bounds the number of remembered event ids.
	DefaultEventCacheSize = 10000
	// SyncSessionsLimit is the number of recent sessions checked by a user
	// triggered balance synchronization.
	SyncSessionsLimit = 10
)

// Config holds the Stripe credentials and the webhook deduplication settings.
type Config struct {
	APIKey         string `json:"api_key"`
	WebhookSecret  string `json:"webhook_secret"`
	EventTTL       time.Duration
	EventCacheSize int
}

// NewConfig returns a configuration for the given credentials. Both are
// required.
func NewConfig(apiKey, webhookSecret string) (*Config, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe API secret is required")
	}
	if webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook secret is required")
	}
	return &Config{
		APIKey:         apiKey,
		WebhookSecret:  webhookSecret,
		EventTTL:       DefaultEventTTL,
		EventCacheSize: DefaultEventCacheSize,
	}, nil
}
