package domain

import "time"

// ClientWebhookConfig is the per-client webhook subscription. Owned by client
// configuration management; this core reads it and exposes a narrow
// read/update surface for seeding and operations.
type ClientWebhookConfig struct {
	ClientID         string    `json:"client_id" dynamodbav:"client_id"`
	WebhookURL       string    `json:"webhook_url" dynamodbav:"webhook_url"` // must be HTTPS
	WebhookSecret    string    `json:"-" dynamodbav:"webhook_secret"`
	WebhookEnabled   bool      `json:"webhook_enabled" dynamodbav:"webhook_enabled"`
	SubscribedEvents []string  `json:"subscribed_events" dynamodbav:"subscribed_events"`
	CreatedAt        time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Subscribed reports whether the client receives the given event type.
func (c *ClientWebhookConfig) Subscribed(eventType string) bool {
	for _, e := range c.SubscribedEvents {
		if e == eventType {
			return true
		}
	}
	return false
}
